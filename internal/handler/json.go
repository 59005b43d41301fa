package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

const maxBodyBytes = 1 << 20

// writeJSON renders the body produced by fn with the given status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// writeError maps err to a status by its fault kind. Internal errors are
// logged and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := fault.CodeOf(err)
	msg := err.Error()

	switch fault.KindOf(err) {
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.Conflict:
		status = http.StatusConflict
	case fault.InvalidInput:
		status = http.StatusBadRequest
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		code = fault.CodeInternal
		msg = "internal server error"
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// decodeObject reads a JSON object body and hands each field to fn.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return fault.Invalid("request body must be a JSON object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		return fault.Invalid("malformed request body: %v", err)
	}
	return nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func strField(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func intField(e *jx.Encoder, name string, v int) {
	e.FieldStart(name)
	e.Int(v)
}

func decimalField(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	encodeDecimal(e, v)
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	encodeTime(e, t)
}

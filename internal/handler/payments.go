package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

// CreatePayment handles POST /api/payments/create. An absent amount means
// the order total.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var (
		orderID string
		amount  decimal.Decimal
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			orderID, err = d.Str()
		case "amount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			amount, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orderID == "" {
		writeError(w, r, fault.Invalid("orderId is required"))
		return
	}

	in, err := h.payments.OpenIntent(r.Context(), orderID, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeIntent(e, in) })
}

// GetPayment handles GET /api/payments/{intentId}.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	in, err := h.payments.GetByID(r.Context(), chi.URLParam(r, "intentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeIntent(e, in) })
}

// GetOrderPayment handles GET /api/payments/order/{orderId}.
func (h *Handler) GetOrderPayment(w http.ResponseWriter, r *http.Request) {
	in, found, err := h.payments.GetByOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, payment.ErrIntentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeIntent(e, in) })
}

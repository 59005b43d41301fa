// Package notify carries payment notifications between the outside world
// and the payment receiver.
package notify

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

// Wire field names. orderId carries the intent's external id and paymentId
// the settlement label.
const (
	fieldEvent      = "event"
	fieldIntentRef  = "orderId"
	fieldLabel      = "paymentId"
	fieldReason     = "reason"
	fieldDeliveryID = "deliveryId"
)

// Decode parses one notification document. Unknown fields are skipped.
func Decode(data []byte) (payment.Notification, error) {
	var n payment.Notification
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return n, fault.Invalid("notification must be a JSON object")
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var dst *string
		switch string(key) {
		case fieldEvent:
			dst = &n.Event
		case fieldIntentRef:
			dst = &n.IntentRef
		case fieldLabel:
			dst = &n.Label
		case fieldReason:
			dst = &n.Reason
		case fieldDeliveryID:
			dst = &n.DeliveryID
		default:
			return d.Skip()
		}
		return decodeOptStr(d, dst)
	})
	if err != nil {
		return n, fault.Invalid("malformed notification: %v", err)
	}
	return n, nil
}

// decodeOptStr reads a string into dst, leaving it empty on null.
func decodeOptStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return errors.Wrap(err, "string")
	}
	*dst = s
	return nil
}

// Encode renders n in the wire format read by Decode.
func Encode(n payment.Notification) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart(fieldEvent)
	e.Str(n.Event)
	e.FieldStart(fieldIntentRef)
	e.Str(n.IntentRef)
	if n.Label != "" {
		e.FieldStart(fieldLabel)
		e.Str(n.Label)
	}
	if n.Reason != "" {
		e.FieldStart(fieldReason)
		e.Str(n.Reason)
	}
	if n.DeliveryID != "" {
		e.FieldStart(fieldDeliveryID)
		e.Str(n.DeliveryID)
	}
	e.ObjEnd()
	return e.Bytes()
}

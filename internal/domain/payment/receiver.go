package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

// Event names understood by the receiver.
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)

// Kind classifies a notification.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindSuccess
	KindFailure
)

// Classify maps an event name to its kind.
func Classify(event string) Kind {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case EventPaymentCaptured, EventOrderPaid:
		return KindSuccess
	case EventPaymentFailed:
		return KindFailure
	default:
		return KindUnrecognized
	}
}

// Notification is a decoded settlement event.
//
// IntentRef is the intent's external id. Label is the payment reference
// reported on success. DeliveryID, when set, identifies one delivery
// attempt stream and is used to drop redeliveries early.
type Notification struct {
	Event      string
	IntentRef  string
	Label      string
	Reason     string
	DeliveryID string
}

// Kind returns the notification's classification.
func (n Notification) Kind() Kind {
	return Classify(n.Event)
}

// ErrMissingEvent is returned for a notification without an event name.
var ErrMissingEvent = fault.New(fault.InvalidInput, fault.CodeInvalidArgument, "event is required")

// ErrMissingIntentRef is returned for a settlement without an intent reference.
var ErrMissingIntentRef = fault.New(fault.InvalidInput, fault.CodeInvalidArgument, "intent reference is required")

// Deduper remembers processed deliveries. Claim reports false when the key was
// already claimed; Forget drops a claim so the delivery can be retried.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Settler applies settlement outcomes.
type Settler interface {
	ApplySuccess(ctx context.Context, externalID, label string) (*Intent, error)
	ApplyFailure(ctx context.Context, externalID, reason string) (*Intent, error)
}

// Receiver is the single entry point for settlement notifications, whether
// they come from the webhook, the message consumer or the simulator.
type Receiver struct {
	settler Settler
	dedupe  Deduper
}

// NewReceiver creates a Receiver. dedupe may be nil.
func NewReceiver(settler Settler, dedupe Deduper) *Receiver {
	return &Receiver{settler: settler, dedupe: dedupe}
}

// Receive applies n. Unrecognized events are logged and acknowledged.
func (r *Receiver) Receive(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.Event) == "" {
		return ErrMissingEvent
	}
	lg := zctx.From(ctx).With(
		zap.String("event", n.Event),
		zap.String("intent_ref", n.IntentRef),
	)

	kind := n.Kind()
	if kind == KindUnrecognized {
		lg.Info("Ignoring unrecognized payment event")
		return nil
	}
	if n.IntentRef == "" {
		return ErrMissingIntentRef
	}

	if r.dedupe != nil && n.DeliveryID != "" {
		fresh, err := r.dedupe.Claim(ctx, n.DeliveryID)
		if err != nil {
			// Fail open: settlement tolerates duplicates.
			lg.Warn("Delivery dedupe unavailable", zap.Error(err))
		} else if !fresh {
			lg.Info("Dropping redelivered notification", zap.String("delivery_id", n.DeliveryID))
			return nil
		}
	}

	var err error
	switch kind {
	case KindSuccess:
		_, err = r.settler.ApplySuccess(ctx, n.IntentRef, n.Label)
	case KindFailure:
		_, err = r.settler.ApplyFailure(ctx, n.IntentRef, n.Reason)
	}
	if err != nil {
		if r.dedupe != nil && n.DeliveryID != "" {
			if ferr := r.dedupe.Forget(ctx, n.DeliveryID); ferr != nil {
				lg.Warn("Failed to forget delivery", zap.Error(ferr))
			}
		}
		return errors.Wrap(err, "apply notification")
	}
	return nil
}

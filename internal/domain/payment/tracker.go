package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/xenking/kart-fulfillment/internal/domain/payment"

// errAlreadySettled aborts Settle when the intent already carries the
// requested outcome.
var errAlreadySettled = errors.New("intent already settled")

// Tracker opens payment intents and applies settlements to them.
type Tracker struct {
	intents   Repository
	orders    Orders
	scheduler Scheduler
	now       func() time.Time

	tracer      trace.Tracer
	settlements metric.Int64Counter
}

// NewTracker creates a Tracker. scheduler may be nil when settlements only
// arrive from outside.
func NewTracker(intents Repository, orders Orders, scheduler Scheduler) *Tracker {
	meter := otel.Meter(instrumentationName)
	settlements, err := meter.Int64Counter("kart.payment.settlements",
		metric.WithDescription("Settlement notifications applied, by outcome and result"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return &Tracker{
		intents:     intents,
		orders:      orders,
		scheduler:   scheduler,
		now:         time.Now,
		tracer:      otel.Tracer(instrumentationName),
		settlements: settlements,
	}
}

// OpenIntent creates a PENDING intent for a CREATED order and schedules its
// settlement. A zero amount means the order total. Amounts finer than a cent
// are rejected.
func (t *Tracker) OpenIntent(ctx context.Context, orderID string, amount decimal.Decimal) (*Intent, error) {
	ctx, span := t.tracer.Start(ctx, "payment.OpenIntent", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if amount.IsNegative() || !amount.Equal(amount.Round(2)) {
		return nil, ErrInvalidAmount
	}

	var opened *Intent
	err := t.orders.WhileCreated(ctx, orderID, func(ctx context.Context, total decimal.Decimal) error {
		if amount.IsZero() {
			amount = total
		}
		if !amount.Equal(total) {
			return ErrInvalidAmount
		}

		existing, err := t.intents.GetByOrder(ctx, orderID)
		switch {
		case errors.Is(err, ErrIntentNotFound):
		case err != nil:
			return errors.Wrap(err, "lookup intent")
		case existing.Status != StatusFailed:
			return &IntentExistsError{OrderID: orderID, IntentID: existing.ID}
		}

		now := t.now().UTC()
		in := &Intent{
			ID:            uuid.New().String(),
			OrderID:       orderID,
			ExternalID:    "intent_" + uuid.New().String(),
			CorrelationID: "pay_" + uuid.New().String(),
			Amount:        amount,
			Status:        StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := t.intents.Create(ctx, in); err != nil {
			var exists *IntentExistsError
			if errors.As(err, &exists) {
				return err
			}
			return errors.Wrap(err, "create intent")
		}
		opened = in
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	zctx.From(ctx).Info("Payment intent opened",
		zap.String("order_id", orderID),
		zap.String("intent_id", opened.ID),
		zap.String("external_id", opened.ExternalID),
		zap.String("amount", opened.Amount.String()),
	)
	if t.scheduler != nil {
		t.scheduler.Schedule(*opened)
	}
	return opened, nil
}

// ApplySuccess marks the intent SUCCESS and its order PAID. Repeating it is
// a no-op; it conflicts with an intent that already FAILED.
func (t *Tracker) ApplySuccess(ctx context.Context, externalID, label string) (*Intent, error) {
	return t.apply(ctx, externalID, OutcomeSuccess, func(in *Intent) {
		in.SettlementLabel = label
	})
}

// ApplyFailure marks the intent FAILED and its order FAILED. Repeating it is
// a no-op; it conflicts with an intent that already succeeded.
func (t *Tracker) ApplyFailure(ctx context.Context, externalID, reason string) (*Intent, error) {
	return t.apply(ctx, externalID, OutcomeFailure, func(in *Intent) {
		in.FailureReason = reason
	})
}

func (t *Tracker) apply(ctx context.Context, externalID string, outcome Outcome, annotate func(*Intent)) (_ *Intent, rerr error) {
	ctx, span := t.tracer.Start(ctx, "payment.Settle", trace.WithAttributes(
		attribute.String("intent.external_id", externalID),
		attribute.Stringer("payment.outcome", outcome),
	))
	result := "applied"
	defer func() {
		if rerr != nil {
			result = "rejected"
			span.SetStatus(codes.Error, rerr.Error())
		}
		t.record(ctx, outcome, result)
		span.End()
	}()

	in, err := t.intents.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	var settled *Intent
	err = t.orders.Settle(ctx, in.OrderID, outcome, func(ctx context.Context) (*Intent, error) {
		// Re-read under the order lock: a concurrent delivery may have won.
		cur, err := t.intents.GetByID(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		if cur.Status.Terminal() {
			if cur.Status == outcome.Status() {
				settled = cur
				return nil, errAlreadySettled
			}
			return nil, &SettlementConflictError{IntentID: cur.ID, Status: cur.Status}
		}

		next := *cur
		next.Status = outcome.Status()
		next.UpdatedAt = t.now().UTC()
		annotate(&next)
		settled = &next
		return &next, nil
	})
	if errors.Is(err, errAlreadySettled) {
		result = "duplicate"
		zctx.From(ctx).Info("Duplicate settlement ignored",
			zap.String("intent_id", settled.ID),
			zap.Stringer("outcome", outcome),
		)
		return settled, nil
	}
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Payment intent settled",
		zap.String("intent_id", settled.ID),
		zap.String("order_id", settled.OrderID),
		zap.String("status", string(settled.Status)),
	)
	return settled, nil
}

func (t *Tracker) record(ctx context.Context, outcome Outcome, result string) {
	if t.settlements == nil {
		return
	}
	t.settlements.Add(ctx, 1, metric.WithAttributes(
		attribute.Stringer("outcome", outcome),
		attribute.String("result", result),
	))
}

// GetByID returns an intent by its internal id.
func (t *Tracker) GetByID(ctx context.Context, id string) (*Intent, error) {
	return t.intents.GetByID(ctx, id)
}

// GetByOrder returns the order's current intent; found is false when the
// order has none.
func (t *Tracker) GetByOrder(ctx context.Context, orderID string) (in *Intent, found bool, err error) {
	in, err = t.intents.GetByOrder(ctx, orderID)
	if errors.Is(err, ErrIntentNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return in, true, nil
}

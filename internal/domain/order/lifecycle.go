package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/payment"
	"github.com/xenking/kart-fulfillment/pkg/keylock"
)

const instrumentationName = "github.com/xenking/kart-fulfillment/internal/domain/order"

// StockReleaser returns stock to inventory.
type StockReleaser interface {
	Release(ctx context.Context, itemID string, qty int) (int, error)
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithReleaseOnFailure makes a failed payment return the order's stock.
func WithReleaseOnFailure(release bool) LifecycleOption {
	return func(l *Lifecycle) {
		l.releaseOnFailure = release
	}
}

// Lifecycle is the only writer of order status.
//
// Every transition holds the order's lock and then compare-and-sets the
// stored status, so exactly one of a racing cancel and settlement wins and
// only the winner touches stock.
type Lifecycle struct {
	orders           Repository
	stock            StockReleaser
	locks            *keylock.Map
	releaseOnFailure bool

	tracer      trace.Tracer
	transitions metric.Int64Counter
}

var _ payment.Orders = (*Lifecycle)(nil)

// NewLifecycle creates a Lifecycle.
func NewLifecycle(orders Repository, stock StockReleaser, opts ...LifecycleOption) *Lifecycle {
	transitions, err := otel.Meter(instrumentationName).Int64Counter("kart.order.transitions",
		metric.WithDescription("Order status transitions"),
	)
	if err != nil {
		otel.Handle(err)
	}
	l := &Lifecycle{
		orders:      orders,
		stock:       stock,
		locks:       keylock.New(),
		tracer:      otel.Tracer(instrumentationName),
		transitions: transitions,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Cancel moves a CREATED order to CANCELLED and returns its stock.
func (l *Lifecycle) Cancel(ctx context.Context, id string) (*Order, error) {
	ctx, span := l.tracer.Start(ctx, "order.Cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	unlock := l.locks.Lock(id)
	defer unlock()

	o, err := l.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusCreated {
		return nil, &InvalidStateError{OrderID: id, Status: o.Status}
	}
	if err := l.orders.UpdateStatus(ctx, id, StatusCreated, StatusCancelled); err != nil {
		return nil, err
	}
	o.Status = StatusCancelled
	l.record(ctx, StatusCancelled)

	l.releaseLines(ctx, o)
	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", id))
	return o, nil
}

// WhileCreated runs fn with the order locked, provided it is CREATED.
func (l *Lifecycle) WhileCreated(ctx context.Context, id string, fn func(ctx context.Context, total decimal.Decimal) error) error {
	unlock := l.locks.Lock(id)
	defer unlock()

	o, err := l.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != StatusCreated {
		return &InvalidStateError{OrderID: id, Status: o.Status}
	}
	return fn(ctx, o.Total)
}

// Settle moves a CREATED order to PAID or FAILED together with the intent
// returned by resolve. resolve runs first, under the order lock, so it can
// recognise a repeated settlement before the status check rejects it.
func (l *Lifecycle) Settle(ctx context.Context, id string, outcome payment.Outcome, resolve func(ctx context.Context) (*payment.Intent, error)) error {
	unlock := l.locks.Lock(id)
	defer unlock()

	o, err := l.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	in, err := resolve(ctx)
	if err != nil {
		return err
	}
	if o.Status != StatusCreated {
		return &InvalidStateError{OrderID: id, Status: o.Status}
	}

	to := StatusPaid
	if outcome == payment.OutcomeFailure {
		to = StatusFailed
	}
	if err := l.orders.ApplySettlement(ctx, id, StatusCreated, to, in); err != nil {
		return errors.Wrapf(err, "settle order %s", id)
	}
	o.Status = to
	l.record(ctx, to)

	if to == StatusFailed && l.releaseOnFailure {
		l.releaseLines(ctx, o)
	}
	zctx.From(ctx).Info("Order settled",
		zap.String("order_id", id),
		zap.String("status", string(to)),
	)
	return nil
}

// releaseLines returns every line's quantity to inventory. The status has
// already moved, so a failed release cannot be retried by the caller; it is
// logged instead.
func (l *Lifecycle) releaseLines(ctx context.Context, o *Order) {
	for _, line := range o.Lines {
		if _, err := l.stock.Release(ctx, line.ItemID, line.Quantity); err != nil {
			zctx.From(ctx).Error("Failed to release stock",
				zap.String("order_id", o.ID),
				zap.String("item_id", line.ItemID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (l *Lifecycle) record(ctx context.Context, to Status) {
	if l.transitions == nil {
		return
	}
	l.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
}

package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

// Intents looks up the payment intent of an order.
type Intents interface {
	GetByOrder(ctx context.Context, orderID string) (*payment.Intent, bool, error)
}

// View is an order joined with its current payment intent, if any.
type View struct {
	Order
	Intent *payment.Intent
}

// Service is the entry point for order operations.
type Service struct {
	builder   *Builder
	lifecycle *Lifecycle
	orders    Repository
	intents   Intents
	scheduler payment.Scheduler
}

// NewService creates an order Service. scheduler may be nil.
func NewService(
	builder *Builder,
	lifecycle *Lifecycle,
	orders Repository,
	intents Intents,
	scheduler payment.Scheduler,
) *Service {
	return &Service{
		builder:   builder,
		lifecycle: lifecycle,
		orders:    orders,
		intents:   intents,
		scheduler: scheduler,
	}
}

// Create turns the user's cart into an order.
func (s *Service) Create(ctx context.Context, userID string) (*Order, error) {
	return s.builder.Create(ctx, userID)
}

// Get returns the order with its payment intent.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &View{Order: *o}
	in, found, err := s.intents.GetByOrder(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get payment intent")
	}
	if found {
		v.Intent = in
	}
	return v, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// Cancel cancels a CREATED order and drops its pending simulated settlement.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	o, err := s.lifecycle.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.scheduler == nil {
		return o, nil
	}
	in, found, err := s.intents.GetByOrder(ctx, id)
	if err != nil {
		zctx.From(ctx).Warn("Failed to look up intent of cancelled order", zap.String("order_id", id), zap.Error(err))
		return o, nil
	}
	if found && s.scheduler.Cancel(in.ExternalID) {
		zctx.From(ctx).Info("Scheduled settlement dropped",
			zap.String("order_id", id),
			zap.String("intent_id", in.ID),
		)
	}
	return o, nil
}

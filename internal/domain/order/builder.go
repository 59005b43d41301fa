package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/inventory"
	"github.com/xenking/kart-fulfillment/pkg/keylock"
)

// ItemReader looks up catalog items.
type ItemReader interface {
	Get(ctx context.Context, id string) (*catalog.Item, error)
}

// Stock reserves and releases inventory.
type Stock interface {
	Reserve(ctx context.Context, itemID string, qty int) (int, error)
	Release(ctx context.Context, itemID string, qty int) (int, error)
}

// Builder turns a user's cart into an order.
type Builder struct {
	carts  cart.Repository
	items  ItemReader
	stock  Stock
	orders Repository
	users  *keylock.Map
	now    func() time.Time

	tracer  trace.Tracer
	created metric.Int64Counter
}

// NewBuilder creates a Builder. users must be the lock map the cart
// accumulator uses.
func NewBuilder(
	carts cart.Repository,
	items ItemReader,
	stock Stock,
	orders Repository,
	users *keylock.Map,
) *Builder {
	created, err := otel.Meter(instrumentationName).Int64Counter("kart.order.created",
		metric.WithDescription("Orders created from carts"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return &Builder{
		carts:   carts,
		items:   items,
		stock:   stock,
		orders:  orders,
		users:   users,
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
		created: created,
	}
}

type reservation struct {
	itemID string
	qty    int
}

// Create builds a CREATED order from the user's cart, reserving stock for
// every line and emptying the cart. Either every line is reserved and the
// order exists, or no stock is held and the cart is untouched.
//
// The per-user lock serializes creations within this process. Across
// processes the cart drain decides: a creation whose lines were drained or
// changed by someone else fails with cart.ErrCartChanged.
func (b *Builder) Create(ctx context.Context, userID string) (_ *Order, rerr error) {
	ctx, span := b.tracer.Start(ctx, "order.Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() {
		if rerr != nil {
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	unlock := b.users.Lock(userID)
	defer unlock()

	cartLines, err := b.carts.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if len(cartLines) == 0 {
		return nil, ErrEmptyCart
	}

	// Validate every line and freeze prices before touching stock.
	lines := make([]Line, 0, len(cartLines))
	for _, cl := range cartLines {
		item, err := b.items.Get(ctx, cl.ItemID)
		if err != nil {
			return nil, err
		}
		if item.Stock < cl.Quantity {
			return nil, &inventory.InsufficientStockError{
				ItemID:    item.ID,
				ItemName:  item.Name,
				Available: item.Stock,
				Requested: cl.Quantity,
			}
		}
		lines = append(lines, Line{
			ItemID:    item.ID,
			Name:      item.Name,
			Quantity:  cl.Quantity,
			UnitPrice: item.Price,
		})
	}

	reserved := make([]reservation, 0, len(lines))
	for _, l := range lines {
		if _, err := b.stock.Reserve(ctx, l.ItemID, l.Quantity); err != nil {
			b.rollback(ctx, reserved)
			return nil, err
		}
		reserved = append(reserved, reservation{itemID: l.ItemID, qty: l.Quantity})
	}

	// The drain is the commit point: only one of several concurrent
	// creations for the same cart gets past it, in this process or another.
	if err := b.carts.Drain(ctx, userID, cartLines); err != nil {
		b.rollback(ctx, reserved)
		if errors.Is(err, cart.ErrCartChanged) {
			return nil, err
		}
		return nil, errors.Wrap(err, "drain cart")
	}

	now := b.now().UTC()
	o := &Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    StatusCreated,
		Total:     SumLines(lines),
		Lines:     lines,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.orders.Create(ctx, o); err != nil {
		b.restore(ctx, cartLines)
		b.rollback(ctx, reserved)
		return nil, errors.Wrap(err, "create order")
	}

	if b.created != nil {
		b.created.Add(ctx, 1)
	}
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.Int("lines", len(lines)),
		zap.String("total", o.Total.String()),
	)
	return o, nil
}

// rollback releases reservations made earlier in a failed Create, newest first.
func (b *Builder) rollback(ctx context.Context, reserved []reservation) {
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if _, err := b.stock.Release(ctx, r.itemID, r.qty); err != nil {
			zctx.From(ctx).Error("Failed to roll back reservation",
				zap.String("item_id", r.itemID),
				zap.Int("quantity", r.qty),
				zap.Error(err),
			)
		}
	}
}

// restore puts drained lines back after the order could not be stored.
func (b *Builder) restore(ctx context.Context, lines []cart.Line) {
	for _, l := range lines {
		if err := b.carts.Save(ctx, &l); err != nil {
			zctx.From(ctx).Error("Failed to restore cart line",
				zap.String("line_id", l.ID),
				zap.String("item_id", l.ItemID),
				zap.Error(err),
			)
		}
	}
}

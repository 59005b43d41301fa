package cart

import (
	"context"
	"iter"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/inventory"
	"github.com/xenking/kart-fulfillment/pkg/keylock"
)

// StockReader reports the current stock of an item.
type StockReader interface {
	CurrentStock(ctx context.Context, itemID string) (int, error)
}

// ItemReader looks up catalog data for display.
type ItemReader interface {
	Get(ctx context.Context, id string) (*catalog.Item, error)
}

// Accumulator merges additions into per-user cart lines.
//
// users is shared with the order builder so that adding to a cart never
// interleaves with turning that cart into an order.
type Accumulator struct {
	lines Repository
	stock StockReader
	items ItemReader
	users *keylock.Map
	now   func() time.Time
}

// NewAccumulator creates an Accumulator.
func NewAccumulator(lines Repository, stock StockReader, items ItemReader, users *keylock.Map) *Accumulator {
	return &Accumulator{
		lines: lines,
		stock: stock,
		items: items,
		users: users,
		now:   time.Now,
	}
}

// Add puts qty units of the item into the user's cart, merging with an
// existing line. The merged quantity must not exceed current stock; stock
// itself is not reserved.
func (a *Accumulator) Add(ctx context.Context, userID, itemID string, qty int) (*Line, error) {
	if qty < 1 {
		return nil, inventory.ErrInvalidQuantity
	}

	unlock := a.users.Lock(userID)
	defer unlock()

	available, err := a.stock.CurrentStock(ctx, itemID)
	if err != nil {
		return nil, err
	}

	line, err := a.lines.Find(ctx, userID, itemID)
	switch {
	case errors.Is(err, ErrLineNotFound):
		line = nil
	case err != nil:
		return nil, errors.Wrap(err, "find cart line")
	}

	existing := 0
	if line != nil {
		existing = line.Quantity
	}
	if existing+qty > available {
		return nil, &inventory.InsufficientStockError{
			ItemID:    itemID,
			Available: available,
			Requested: existing + qty,
		}
	}

	now := a.now().UTC()
	if line == nil {
		line = &Line{
			ID:        uuid.New().String(),
			UserID:    userID,
			ItemID:    itemID,
			CreatedAt: now,
		}
	}
	line.Quantity = existing + qty
	line.UpdatedAt = now

	if err := a.lines.Save(ctx, line); err != nil {
		return nil, errors.Wrap(err, "save cart line")
	}
	return line, nil
}

// List returns the user's lines joined with catalog data. The lines are read
// up front; catalog lookups happen as the sequence is consumed.
func (a *Accumulator) List(ctx context.Context, userID string) (iter.Seq[LineView], error) {
	unlock := a.users.Lock(userID)
	lines, err := a.lines.Lines(ctx, userID)
	unlock()
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}

	return func(yield func(LineView) bool) {
		for _, l := range lines {
			if !yield(a.view(ctx, l)) {
				return
			}
		}
	}, nil
}

func (a *Accumulator) view(ctx context.Context, l Line) LineView {
	v := LineView{Line: l}
	item, err := a.items.Get(ctx, l.ItemID)
	if err != nil {
		zctx.From(ctx).Warn("Cart line references unavailable item",
			zap.String("line_id", l.ID),
			zap.String("item_id", l.ItemID),
			zap.Error(err),
		)
		return v
	}
	v.Name = item.Name
	v.Price = item.Price
	v.Subtotal = item.Price.Mul(decimalQty(l.Quantity))
	v.Available = true
	return v
}

// Clear empties the user's cart.
func (a *Accumulator) Clear(ctx context.Context, userID string) error {
	unlock := a.users.Lock(userID)
	defer unlock()

	if err := a.lines.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// RemoveLine deletes a single line under its owner's lock. Removing a
// missing line is not an error.
func (a *Accumulator) RemoveLine(ctx context.Context, lineID string) error {
	line, err := a.lines.Get(ctx, lineID)
	switch {
	case errors.Is(err, ErrLineNotFound):
		return nil
	case err != nil:
		return errors.Wrap(err, "find cart line")
	}

	unlock := a.users.Lock(line.UserID)
	defer unlock()

	if err := a.lines.DeleteLine(ctx, lineID); err != nil {
		return errors.Wrap(err, "remove cart line")
	}
	return nil
}

// Package inventory guards the stock counters of catalog items.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/fault"
	"github.com/xenking/kart-fulfillment/pkg/keylock"
)

// InsufficientStockError reports that an item cannot cover a requested quantity.
type InsufficientStockError struct {
	ItemID    string
	ItemName  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.ItemID
	if e.ItemName != "" {
		name = e.ItemName
	}
	return fmt.Sprintf("insufficient stock for item %s: available %d, requested %d", name, e.Available, e.Requested)
}

// Kind implements fault.Classified.
func (e *InsufficientStockError) Kind() fault.Kind { return fault.Conflict }

// Code implements fault.Classified.
func (e *InsufficientStockError) Code() string { return fault.CodeInsufficientStock }

// ErrInvalidQuantity is returned for a non-positive quantity.
var ErrInvalidQuantity = fault.New(fault.InvalidInput, fault.CodeInvalidQuantity, "quantity must be greater than 0")

// Ledger serializes check-then-adjust on each item's stock counter.
//
// The per-item lock covers every writer in this process; the repository's
// AdjustStock additionally refuses underflow, which keeps the counter
// non-negative when several processes share one database.
type Ledger struct {
	items catalog.Repository
	locks *keylock.Map
}

// NewLedger creates a Ledger over the given item store.
func NewLedger(items catalog.Repository) *Ledger {
	return &Ledger{items: items, locks: keylock.New()}
}

// Reserve takes qty units of the item and returns the remaining stock.
// Nothing changes when the stock cannot cover qty.
func (l *Ledger) Reserve(ctx context.Context, itemID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	unlock := l.locks.Lock(itemID)
	defer unlock()

	item, err := l.items.Get(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if item.Stock < qty {
		return 0, &InsufficientStockError{ItemID: itemID, ItemName: item.Name, Available: item.Stock, Requested: qty}
	}

	left, err := l.items.AdjustStock(ctx, itemID, -qty)
	if err != nil {
		if errors.Is(err, catalog.ErrStockUnderflow) {
			// Another process won the counter between our read and write.
			current, _ := l.items.Get(ctx, itemID)
			available := 0
			if current != nil {
				available = current.Stock
			}
			return 0, &InsufficientStockError{ItemID: itemID, ItemName: item.Name, Available: available, Requested: qty}
		}
		return 0, errors.Wrapf(err, "reserve %d of %s", qty, itemID)
	}
	return left, nil
}

// Release returns qty units to the item and reports the new stock. There is
// no upper bound.
func (l *Ledger) Release(ctx context.Context, itemID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	unlock := l.locks.Lock(itemID)
	defer unlock()

	stock, err := l.items.AdjustStock(ctx, itemID, qty)
	if err != nil {
		return 0, errors.Wrapf(err, "release %d of %s", qty, itemID)
	}
	return stock, nil
}

// CurrentStock reads the item's stock without reserving anything.
func (l *Ledger) CurrentStock(ctx context.Context, itemID string) (int, error) {
	item, err := l.items.Get(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return item.Stock, nil
}

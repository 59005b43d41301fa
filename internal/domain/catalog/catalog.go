// Package catalog holds the items that can be ordered, with their price and
// stock counter.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

// ErrItemNotFound is returned when an item does not exist.
var ErrItemNotFound = fault.New(fault.NotFound, fault.CodeItemNotFound, "item not found")

// ErrStockUnderflow is returned by Repository.AdjustStock when the adjustment
// would take the counter below zero. Nothing is written in that case.
var ErrStockUnderflow = fault.New(fault.Conflict, fault.CodeInsufficientStock, "stock would become negative")

// Item is a catalog entry.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PriceScale is the number of decimal places a price may carry. Responses
// and the price columns use the same scale.
const PriceScale = 2

// Validate checks the fields a caller may set.
func (i *Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fault.Invalid("item name is required")
	}
	if i.Price.IsNegative() {
		return fault.New(fault.InvalidInput, fault.CodeInvalidAmount, "price must not be negative")
	}
	if !i.Price.Equal(i.Price.Round(PriceScale)) {
		return fault.New(fault.InvalidInput, fault.CodeInvalidAmount, "price must have at most two decimal places")
	}
	if i.Stock < 0 {
		return fault.New(fault.InvalidInput, fault.CodeInvalidQuantity, "stock must not be negative")
	}
	return nil
}

// Repository persists catalog items.
//
// AdjustStock applies delta to the stock counter as one atomic step and
// returns the new value. It must reject, with ErrStockUnderflow, any delta that
// would leave the counter negative.
type Repository interface {
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context) ([]Item, error)
	Search(ctx context.Context, query string) ([]Item, error)
	Create(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	AdjustStock(ctx context.Context, id string, delta int) (int, error)
}

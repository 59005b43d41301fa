// Package order builds orders from carts and owns their status lifecycle.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is defined.
func (s Status) Terminal() bool {
	return s != StatusCreated
}

// Sentinel errors for order operations.
var (
	ErrNotFound  = fault.New(fault.NotFound, fault.CodeOrderNotFound, "order not found")
	ErrEmptyCart = fault.New(fault.InvalidInput, fault.CodeEmptyCart, "cart is empty")
)

// InvalidStateError reports an operation that needs a different order status.
type InvalidStateError struct {
	OrderID string
	Status  Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %s has status %s", e.OrderID, e.Status)
}

// Kind implements fault.Classified.
func (e *InvalidStateError) Kind() fault.Kind { return fault.Conflict }

// Code implements fault.Classified.
func (e *InvalidStateError) Code() string { return fault.CodeInvalidOrderState }

// Line is a frozen copy of what was ordered, priced at order time.
type Line struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns quantity times unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a priced, immutable set of lines with a mutable status. Total is
// fixed when the order is built.
type Order struct {
	ID        string
	UserID    string
	Status    Status
	Total     decimal.Decimal
	Lines     []Line
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SumLines adds up the line subtotals.
func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Repository persists orders.
//
// UpdateStatus and ApplySettlement are compare-and-set on the status: they
// fail with *InvalidStateError, writing nothing, when the stored status is
// not from. ApplySettlement also stores the intent, and either both records
// change or neither does.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	ApplySettlement(ctx context.Context, id string, from, to Status, in *payment.Intent) error
}

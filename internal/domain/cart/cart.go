// Package cart accumulates the items a user intends to order.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

// ErrLineNotFound is returned by Repository.Find when the user has no line
// for the item.
var ErrLineNotFound = fault.New(fault.NotFound, fault.CodeCartLineNotFound, "cart line not found")

// ErrCartChanged is returned by Repository.Drain when the stored lines no
// longer match the ones the caller read.
var ErrCartChanged = fault.New(fault.Conflict, fault.CodeCartChanged, "cart changed while the order was being placed")

// Line is one item in a user's cart. A user has at most one line per item.
type Line struct {
	ID        string
	UserID    string
	ItemID    string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineView is a cart line joined with the current catalog data. When the
// item no longer exists, Name and Price are empty and Available is false.
type LineView struct {
	Line
	Name      string
	Price     decimal.Decimal
	Subtotal  decimal.Decimal
	Available bool
}

// Repository persists cart lines.
//
// Lines returns the user's lines in insertion order. Save inserts the line
// or, when a line with the same ID exists, updates its quantity. DeleteLine
// and Clear succeed when there is nothing to delete.
//
// Drain deletes exactly the given lines of the user as one atomic step. If
// any of them is gone or its quantity differs, it deletes nothing and
// returns ErrCartChanged. Lines added after the read are left in place.
type Repository interface {
	Lines(ctx context.Context, userID string) ([]Line, error)
	Get(ctx context.Context, lineID string) (*Line, error)
	Find(ctx context.Context, userID, itemID string) (*Line, error)
	Save(ctx context.Context, line *Line) error
	DeleteLine(ctx context.Context, lineID string) error
	Clear(ctx context.Context, userID string) error
	Drain(ctx context.Context, userID string, lines []Line) error
}

func decimalQty(q int) decimal.Decimal {
	return decimal.NewFromInt(int64(q))
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

const (
	orderColumns = `id, user_id, status, total, lines, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, user_id, status, total, lines, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	getOrderSQL         = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY seq DESC`
	orderStatusSQL      = `SELECT status FROM orders WHERE id = $1`
	swapOrderStatusSQL  = `UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`

	settleIntentSQL = `UPDATE payment_intents
		SET status = $3, settlement_label = $4, failure_reason = $5, updated_at = $6
		WHERE id = $1 AND order_id = $2 AND status = 'PENDING'`
	intentStatusSQL = `SELECT status FROM payment_intents WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The lines are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, string(o.Status), o.Total, linesJSON, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus moves the order from one status to another.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	return swapStatus(ctx, r.pool, id, from, to)
}

// ApplySettlement writes the order status and the settled intent in one
// transaction.
func (r *OrderRepository) ApplySettlement(ctx context.Context, id string, from, to order.Status, in *payment.Intent) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := swapStatus(ctx, tx, id, from, to); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, settleIntentSQL,
			in.ID, id, string(in.Status), in.SettlementLabel, in.FailureReason, in.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("settling intent %q: %w", in.ID, err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var status string
		if err := tx.QueryRow(ctx, intentStatusSQL, in.ID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return payment.ErrIntentNotFound
			}
			return fmt.Errorf("reading intent %q: %w", in.ID, err)
		}
		return &payment.SettlementConflictError{IntentID: in.ID, Status: payment.Status(status)}
	})
}

func swapStatus(ctx context.Context, q querier, id string, from, to order.Status) error {
	tag, err := q.Exec(ctx, swapOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	if err := q.QueryRow(ctx, orderStatusSQL, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("reading status of order %q: %w", id, err)
	}
	return &order.InvalidStateError{OrderID: id, Status: order.Status(current)}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		status    string
		linesJSON []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.Total, &linesJSON, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling lines of order %q: %w", o.ID, err)
	}
	return o, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

const (
	intentColumns = `id, order_id, external_id, correlation_id, amount, status,
		settlement_label, failure_reason, created_at, updated_at`

	createIntentSQL = `INSERT INTO payment_intents (id, order_id, external_id, correlation_id, amount, status,
		settlement_label, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	getIntentSQL           = `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`
	getIntentByExternalSQL = `SELECT ` + intentColumns + ` FROM payment_intents WHERE external_id = $1`
	// Live intent first, then the newest failed one.
	getIntentByOrderSQL = `SELECT ` + intentColumns + ` FROM payment_intents WHERE order_id = $1
		ORDER BY (status <> 'FAILED') DESC, seq DESC LIMIT 1`

	liveIntentIndex = "payment_intents_live_order"
)

var _ payment.Repository = (*IntentRepository)(nil)

// IntentRepository implements payment.Repository backed by PostgreSQL.
type IntentRepository struct {
	pool *pgxpool.Pool
}

// NewIntentRepository returns an IntentRepository that uses the given pool.
func NewIntentRepository(pool *pgxpool.Pool) *IntentRepository {
	return &IntentRepository{pool: pool}
}

// Create inserts an intent. The partial unique index on order_id turns a
// second live intent into *payment.IntentExistsError.
func (r *IntentRepository) Create(ctx context.Context, in *payment.Intent) error {
	_, err := r.pool.Exec(ctx, createIntentSQL,
		in.ID, in.OrderID, in.ExternalID, in.CorrelationID, in.Amount, string(in.Status),
		in.SettlementLabel, in.FailureReason, in.CreatedAt, in.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, liveIntentIndex) {
		existing, gerr := r.GetByOrder(ctx, in.OrderID)
		if gerr != nil {
			return &payment.IntentExistsError{OrderID: in.OrderID}
		}
		return &payment.IntentExistsError{OrderID: in.OrderID, IntentID: existing.ID}
	}
	return fmt.Errorf("creating intent for order %q: %w", in.OrderID, err)
}

func (r *IntentRepository) GetByID(ctx context.Context, id string) (*payment.Intent, error) {
	return r.one(ctx, getIntentSQL, id)
}

func (r *IntentRepository) GetByExternalID(ctx context.Context, externalID string) (*payment.Intent, error) {
	return r.one(ctx, getIntentByExternalSQL, externalID)
}

func (r *IntentRepository) GetByOrder(ctx context.Context, orderID string) (*payment.Intent, error) {
	return r.one(ctx, getIntentByOrderSQL, orderID)
}

func (r *IntentRepository) one(ctx context.Context, sql, arg string) (*payment.Intent, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting intent %q: %w", arg, err)
	}
	in, err := pgx.CollectExactlyOneRow(rows, scanIntent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrIntentNotFound
		}
		return nil, fmt.Errorf("getting intent %q: %w", arg, err)
	}
	return &in, nil
}

func scanIntent(row pgx.CollectableRow) (payment.Intent, error) {
	var (
		in     payment.Intent
		status string
	)
	err := row.Scan(
		&in.ID, &in.OrderID, &in.ExternalID, &in.CorrelationID, &in.Amount, &status,
		&in.SettlementLabel, &in.FailureReason, &in.CreatedAt, &in.UpdatedAt,
	)
	in.Status = payment.Status(status)
	return in, err
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
)

const (
	lineColumns = `id, user_id, item_id, quantity, created_at, updated_at`

	listLinesSQL = `SELECT ` + lineColumns + ` FROM cart_lines WHERE user_id = $1 ORDER BY seq`
	getLineSQL   = `SELECT ` + lineColumns + ` FROM cart_lines WHERE id = $1`
	findLineSQL  = `SELECT ` + lineColumns + ` FROM cart_lines WHERE user_id = $1 AND item_id = $2`
	saveLineSQL  = `INSERT INTO cart_lines (id, user_id, item_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`
	deleteLineSQL = `DELETE FROM cart_lines WHERE id = $1`
	clearCartSQL  = `DELETE FROM cart_lines WHERE user_id = $1`
	drainCartSQL  = `DELETE FROM cart_lines WHERE user_id = $1 AND id = ANY($2) RETURNING id, quantity`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanLine)
}

func (r *CartRepository) Get(ctx context.Context, lineID string) (*cart.Line, error) {
	rows, err := r.pool.Query(ctx, getLineSQL, lineID)
	if err != nil {
		return nil, fmt.Errorf("getting cart line %q: %w", lineID, err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLineNotFound
		}
		return nil, fmt.Errorf("getting cart line %q: %w", lineID, err)
	}
	return &l, nil
}

func (r *CartRepository) Find(ctx context.Context, userID, itemID string) (*cart.Line, error) {
	rows, err := r.pool.Query(ctx, findLineSQL, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("finding cart line: %w", err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLineNotFound
		}
		return nil, fmt.Errorf("finding cart line: %w", err)
	}
	return &l, nil
}

func (r *CartRepository) Save(ctx context.Context, l *cart.Line) error {
	_, err := r.pool.Exec(ctx, saveLineSQL, l.ID, l.UserID, l.ItemID, l.Quantity, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving cart line %q: %w", l.ID, err)
	}
	return nil
}

func (r *CartRepository) DeleteLine(ctx context.Context, lineID string) error {
	if _, err := r.pool.Exec(ctx, deleteLineSQL, lineID); err != nil {
		return fmt.Errorf("deleting cart line %q: %w", lineID, err)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

// Drain deletes the lines in one transaction and rolls back unless every
// line was deleted with the quantity the caller read. A concurrent drain of
// the same lines blocks on the row locks and then deletes nothing.
func (r *CartRepository) Drain(ctx context.Context, userID string, lines []cart.Line) error {
	want := make(map[string]int, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		want[l.ID] = l.Quantity
		ids = append(ids, l.ID)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, drainCartSQL, userID, ids)
		if err != nil {
			return fmt.Errorf("draining cart of %q: %w", userID, err)
		}
		deleted, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
			var l cart.Line
			err := row.Scan(&l.ID, &l.Quantity)
			return l, err
		})
		if err != nil {
			return fmt.Errorf("draining cart of %q: %w", userID, err)
		}
		if len(deleted) != len(want) {
			return cart.ErrCartChanged
		}
		for _, l := range deleted {
			if qty, ok := want[l.ID]; !ok || qty != l.Quantity {
				return cart.ErrCartChanged
			}
		}
		return nil
	})
}

func scanLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.UserID, &l.ItemID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

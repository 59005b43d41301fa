package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
)

const (
	itemColumns = `id, name, description, price, stock, created_at, updated_at`

	listItemsSQL   = `SELECT ` + itemColumns + ` FROM items ORDER BY seq`
	searchItemsSQL = `SELECT ` + itemColumns + ` FROM items
		WHERE strpos(lower(name), lower($1)) > 0 ORDER BY seq`
	getItemSQL    = `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	createItemSQL = `INSERT INTO items (id, name, description, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	updateItemSQL = `UPDATE items SET name = $2, description = $3, price = $4, updated_at = $5
		WHERE id = $1 RETURNING stock`
	deleteItemSQL = `DELETE FROM items WHERE id = $1`
	countItemsSQL = `SELECT count(*) FROM items`

	// The predicate makes the adjustment a compare-and-set: it only applies
	// while the result stays non-negative.
	adjustStockSQL = `UPDATE items SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0 RETURNING stock`
	itemExistsSQL = `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`
)

var _ catalog.Repository = (*ItemRepository)(nil)

// ItemRepository implements catalog.Repository backed by PostgreSQL.
type ItemRepository struct {
	pool *pgxpool.Pool
}

// NewItemRepository returns an ItemRepository that uses the given pool.
func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

// Get returns a single item by its identifier.
func (r *ItemRepository) Get(ctx context.Context, id string) (*catalog.Item, error) {
	rows, err := r.pool.Query(ctx, getItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting item %q: %w", id, err)
	}

	item, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrItemNotFound
		}
		return nil, fmt.Errorf("getting item %q: %w", id, err)
	}
	return &item, nil
}

// List returns all items in creation order.
func (r *ItemRepository) List(ctx context.Context) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, listItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// Search returns items whose name contains query, ignoring case.
func (r *ItemRepository) Search(ctx context.Context, query string) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, searchItemsSQL, query)
	if err != nil {
		return nil, fmt.Errorf("searching items: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// Create inserts a new item.
func (r *ItemRepository) Create(ctx context.Context, item *catalog.Item) error {
	_, err := r.pool.Exec(ctx, createItemSQL,
		item.ID, item.Name, item.Description, item.Price, item.Stock, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating item %q: %w", item.ID, err)
	}
	return nil
}

// Update stores the descriptive fields and refreshes item.Stock from the row.
func (r *ItemRepository) Update(ctx context.Context, item *catalog.Item) error {
	err := r.pool.QueryRow(ctx, updateItemSQL,
		item.ID, item.Name, item.Description, item.Price, item.UpdatedAt,
	).Scan(&item.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrItemNotFound
		}
		return fmt.Errorf("updating item %q: %w", item.ID, err)
	}
	return nil
}

// Delete removes an item.
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteItemSQL, id)
	if err != nil {
		return fmt.Errorf("deleting item %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrItemNotFound
	}
	return nil
}

// Count returns the number of items.
func (r *ItemRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countItemsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return n, nil
}

// AdjustStock adds delta to the stock in a single conditional UPDATE.
func (r *ItemRepository) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, adjustStockSQL, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjusting stock of %q: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, itemExistsSQL, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking item %q: %w", id, err)
	}
	if !exists {
		return 0, catalog.ErrItemNotFound
	}
	return 0, catalog.ErrStockUnderflow
}

func scanItem(row pgx.CollectableRow) (catalog.Item, error) {
	var it catalog.Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
)

var _ catalog.Repository = (*ItemRepository)(nil)

// ItemRepository implements catalog.Repository.
type ItemRepository struct {
	s *Store
}

func (r *ItemRepository) Get(_ context.Context, id string) (*catalog.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.items[id]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	item := rec.v
	return &item, nil
}

func (r *ItemRepository) List(_ context.Context) ([]catalog.Item, error) {
	return r.collect(func(catalog.Item) bool { return true }), nil
}

func (r *ItemRepository) Search(_ context.Context, query string) ([]catalog.Item, error) {
	q := strings.ToLower(query)
	return r.collect(func(i catalog.Item) bool {
		return strings.Contains(strings.ToLower(i.Name), q)
	}), nil
}

func (r *ItemRepository) collect(match func(catalog.Item) bool) []catalog.Item {
	r.s.mu.RLock()
	recs := make([]record[catalog.Item], 0, len(r.s.items))
	for _, rec := range r.s.items {
		if match(rec.v) {
			recs = append(recs, rec)
		}
	}
	r.s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b record[catalog.Item]) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]catalog.Item, len(recs))
	for i, rec := range recs {
		out[i] = rec.v
	}
	return out
}

func (r *ItemRepository) Create(_ context.Context, item *catalog.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.items[item.ID]; ok {
		return errors.Errorf("item %q already exists", item.ID)
	}
	r.s.items[item.ID] = record[catalog.Item]{v: *item, seq: r.s.next()}
	return nil
}

// Update stores the descriptive fields. Stock is left as stored.
func (r *ItemRepository) Update(_ context.Context, item *catalog.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.items[item.ID]
	if !ok {
		return catalog.ErrItemNotFound
	}
	rec.v.Name = item.Name
	rec.v.Description = item.Description
	rec.v.Price = item.Price
	rec.v.UpdatedAt = item.UpdatedAt
	r.s.items[item.ID] = rec
	item.Stock = rec.v.Stock
	return nil
}

func (r *ItemRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.items[id]; !ok {
		return catalog.ErrItemNotFound
	}
	delete(r.s.items, id)
	return nil
}

func (r *ItemRepository) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.items), nil
}

func (r *ItemRepository) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.items[id]
	if !ok {
		return 0, catalog.ErrItemNotFound
	}
	if rec.v.Stock+delta < 0 {
		return rec.v.Stock, catalog.ErrStockUnderflow
	}
	rec.v.Stock += delta
	r.s.items[id] = rec
	return rec.v.Stock, nil
}

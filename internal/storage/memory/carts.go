package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository.
type CartRepository struct {
	s *Store
}

func (r *CartRepository) Lines(_ context.Context, userID string) ([]cart.Line, error) {
	r.s.mu.RLock()
	recs := make([]record[cart.Line], 0)
	for _, rec := range r.s.lines {
		if rec.v.UserID == userID {
			recs = append(recs, rec)
		}
	}
	r.s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b record[cart.Line]) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]cart.Line, len(recs))
	for i, rec := range recs {
		out[i] = rec.v
	}
	return out, nil
}

func (r *CartRepository) Get(_ context.Context, lineID string) (*cart.Line, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.lines[lineID]
	if !ok {
		return nil, cart.ErrLineNotFound
	}
	l := rec.v
	return &l, nil
}

func (r *CartRepository) Find(_ context.Context, userID, itemID string) (*cart.Line, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, rec := range r.s.lines {
		if rec.v.UserID == userID && rec.v.ItemID == itemID {
			l := rec.v
			return &l, nil
		}
	}
	return nil, cart.ErrLineNotFound
}

// Save inserts the line or replaces the stored copy, keeping its position.
func (r *CartRepository) Save(_ context.Context, line *cart.Line) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.lines[line.ID]
	if !ok {
		rec.seq = r.s.next()
	}
	rec.v = *line
	r.s.lines[line.ID] = rec
	return nil
}

func (r *CartRepository) DeleteLine(_ context.Context, lineID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.lines, lineID)
	return nil
}

func (r *CartRepository) Clear(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, rec := range r.s.lines {
		if rec.v.UserID == userID {
			delete(r.s.lines, id)
		}
	}
	return nil
}

func (r *CartRepository) Drain(_ context.Context, userID string, lines []cart.Line) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, l := range lines {
		rec, ok := r.s.lines[l.ID]
		if !ok || rec.v.UserID != userID || rec.v.Quantity != l.Quantity {
			return cart.ErrCartChanged
		}
	}
	for _, l := range lines {
		delete(r.s.lines, l.ID)
	}
	return nil
}

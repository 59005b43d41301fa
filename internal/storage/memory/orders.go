package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[o.ID]; ok {
		return errors.Errorf("order %q already exists", o.ID)
	}
	r.s.orders[o.ID] = record[order.Order]{v: cloneOrder(*o), seq: r.s.next()}
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o := cloneOrder(rec.v)
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	r.s.mu.RLock()
	recs := make([]record[order.Order], 0)
	for _, rec := range r.s.orders {
		if rec.v.UserID == userID {
			recs = append(recs, record[order.Order]{v: cloneOrder(rec.v), seq: rec.seq})
		}
	}
	r.s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b record[order.Order]) int {
		return cmp.Compare(b.seq, a.seq)
	})
	out := make([]order.Order, len(recs))
	for i, rec := range recs {
		out[i] = rec.v
	}
	return out, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.swapStatus(id, from, to)
}

// ApplySettlement writes the order status and the intent under one lock.
func (r *OrderRepository) ApplySettlement(_ context.Context, id string, from, to order.Status, in *payment.Intent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.intents[in.ID]
	if !ok {
		return payment.ErrIntentNotFound
	}
	if stored.v.Status != payment.StatusPending {
		return &payment.SettlementConflictError{IntentID: in.ID, Status: stored.v.Status}
	}
	if stored.v.OrderID != id {
		return errors.Errorf("intent %s belongs to order %s, not %s", in.ID, stored.v.OrderID, id)
	}

	if err := r.swapStatus(id, from, to); err != nil {
		return err
	}
	stored.v = *in
	r.s.intents[in.ID] = stored
	return nil
}

// swapStatus must be called with mu held for writing.
func (r *OrderRepository) swapStatus(id string, from, to order.Status) error {
	rec, ok := r.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if rec.v.Status != from {
		return &order.InvalidStateError{OrderID: id, Status: rec.v.Status}
	}
	rec.v.Status = to
	rec.v.UpdatedAt = time.Now().UTC()
	r.s.orders[id] = rec
	return nil
}

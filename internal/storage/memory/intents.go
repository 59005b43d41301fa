package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

var _ payment.Repository = (*IntentRepository)(nil)

// IntentRepository implements payment.Repository. It enforces the same
// uniqueness the SQL schema does: one external id per intent and at most one
// non-failed intent per order.
type IntentRepository struct {
	s *Store
}

func (r *IntentRepository) Create(_ context.Context, in *payment.Intent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.intents {
		if rec.v.ExternalID == in.ExternalID {
			return errors.Errorf("external id %q already used", in.ExternalID)
		}
		if rec.v.OrderID == in.OrderID && rec.v.Status != payment.StatusFailed {
			return &payment.IntentExistsError{OrderID: in.OrderID, IntentID: rec.v.ID}
		}
	}
	r.s.intents[in.ID] = record[payment.Intent]{v: *in, seq: r.s.next()}
	return nil
}

func (r *IntentRepository) GetByID(_ context.Context, id string) (*payment.Intent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.intents[id]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	in := rec.v
	return &in, nil
}

func (r *IntentRepository) GetByExternalID(_ context.Context, externalID string) (*payment.Intent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, rec := range r.s.intents {
		if rec.v.ExternalID == externalID {
			in := rec.v
			return &in, nil
		}
	}
	return nil, payment.ErrIntentNotFound
}

// GetByOrder prefers the live intent, falling back to the newest failed one.
func (r *IntentRepository) GetByOrder(_ context.Context, orderID string) (*payment.Intent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var (
		best  record[payment.Intent]
		found bool
	)
	for _, rec := range r.s.intents {
		if rec.v.OrderID != orderID {
			continue
		}
		if rec.v.Status != payment.StatusFailed {
			in := rec.v
			return &in, nil
		}
		if !found || rec.seq > best.seq {
			best, found = rec, true
		}
	}
	if !found {
		return nil, payment.ErrIntentNotFound
	}
	in := best.v
	return &in, nil
}

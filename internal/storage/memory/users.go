package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/xenking/kart-fulfillment/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository.
type UserRepository struct {
	s *Store
}

func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.users {
		if rec.v.ID == u.ID ||
			strings.EqualFold(rec.v.Username, u.Username) ||
			strings.EqualFold(rec.v.Email, u.Email) {
			return user.ErrDuplicate
		}
	}
	r.s.users[u.ID] = record[user.User]{v: *u, seq: r.s.next()}
	return nil
}

func (r *UserRepository) Get(_ context.Context, id string) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u := rec.v
	return &u, nil
}

func (r *UserRepository) List(_ context.Context) ([]user.User, error) {
	r.s.mu.RLock()
	recs := make([]record[user.User], 0, len(r.s.users))
	for _, rec := range r.s.users {
		recs = append(recs, rec)
	}
	r.s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b record[user.User]) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]user.User, len(recs))
	for i, rec := range recs {
		out[i] = rec.v
	}
	return out, nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

// Package memory is an in-process store used when no database is configured
// and by tests. Records are copied on the way in and out so callers never
// share memory with the store.
package memory

import (
	"sync"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
	"github.com/xenking/kart-fulfillment/internal/domain/user"
)

type record[T any] struct {
	v   T
	seq uint64
}

// Store holds every collection behind one lock, which is what lets
// settlement update an order and its intent atomically.
type Store struct {
	mu      sync.RWMutex
	seq     uint64
	items   map[string]record[catalog.Item]
	lines   map[string]record[cart.Line]
	orders  map[string]record[order.Order]
	intents map[string]record[payment.Intent]
	users   map[string]record[user.User]
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		items:   make(map[string]record[catalog.Item]),
		lines:   make(map[string]record[cart.Line]),
		orders:  make(map[string]record[order.Order]),
		intents: make(map[string]record[payment.Intent]),
		users:   make(map[string]record[user.User]),
	}
}

// next must be called with mu held for writing.
func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

// Items returns the catalog repository.
func (s *Store) Items() *ItemRepository { return &ItemRepository{s: s} }

// Carts returns the cart line repository.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Intents returns the payment intent repository.
func (s *Store) Intents() *IntentRepository { return &IntentRepository{s: s} }

// Users returns the user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

func cloneOrder(o order.Order) order.Order {
	o.Lines = append([]order.Line(nil), o.Lines...)
	return o
}

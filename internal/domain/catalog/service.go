package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Restocker increments stock through the inventory ledger.
type Restocker interface {
	Release(ctx context.Context, itemID string, qty int) (int, error)
}

// Service implements catalog maintenance. Stock is only set at creation;
// later changes go through the inventory ledger.
type Service struct {
	items   Repository
	restock Restocker
	now     func() time.Time
}

// NewService creates a catalog Service.
func NewService(items Repository, restock Restocker) *Service {
	return &Service{items: items, restock: restock, now: time.Now}
}

// Update describes a change to an item's descriptive fields.
type Update struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
}

// Create validates and stores a new item. An empty ID is generated.
func (s *Service) Create(ctx context.Context, item Item) (*Item, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := s.now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	if err := s.items.Create(ctx, &item); err != nil {
		return nil, errors.Wrap(err, "create item")
	}
	return &item, nil
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	return s.items.Get(ctx, id)
}

// List returns every item.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.items.List(ctx)
}

// Search returns items whose name contains query, case-insensitively.
func (s *Service) Search(ctx context.Context, query string) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.items.List(ctx)
	}
	return s.items.Search(ctx, query)
}

// Update applies the non-nil fields of u.
func (s *Service) Update(ctx context.Context, id string, u Update) (*Item, error) {
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		item.Name = *u.Name
	}
	if u.Description != nil {
		item.Description = *u.Description
	}
	if u.Price != nil {
		item.Price = *u.Price
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	item.UpdatedAt = s.now().UTC()
	if err := s.items.Update(ctx, item); err != nil {
		return nil, errors.Wrap(err, "update item")
	}
	return item, nil
}

// Delete removes an item. Orders keep their frozen line copies.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.items.Delete(ctx, id)
}

// Restock adds qty units to the item's stock.
func (s *Service) Restock(ctx context.Context, id string, qty int) (*Item, error) {
	if _, err := s.restock.Release(ctx, id, qty); err != nil {
		return nil, err
	}
	return s.items.Get(ctx, id)
}

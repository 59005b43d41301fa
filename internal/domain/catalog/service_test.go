package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

// --- Mocks ---

type mockRepo struct {
	items map[string]Item
	err   error
}

func newMockRepo(items ...Item) *mockRepo {
	m := &mockRepo{items: make(map[string]Item)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockRepo) Get(_ context.Context, id string) (*Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	it, ok := m.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return &it, nil
}

func (m *mockRepo) List(context.Context) ([]Item, error) {
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, m.err
}

func (m *mockRepo) Search(_ context.Context, query string) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if strings.Contains(strings.ToLower(it.Name), strings.ToLower(query)) {
			out = append(out, it)
		}
	}
	return out, m.err
}

func (m *mockRepo) Create(_ context.Context, item *Item) error {
	if m.err != nil {
		return m.err
	}
	m.items[item.ID] = *item
	return nil
}

func (m *mockRepo) Update(_ context.Context, item *Item) error {
	if m.err != nil {
		return m.err
	}
	m.items[item.ID] = *item
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) Count(context.Context) (int, error) { return len(m.items), m.err }

func (m *mockRepo) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	it, ok := m.items[id]
	if !ok {
		return 0, ErrItemNotFound
	}
	if it.Stock+delta < 0 {
		return 0, ErrStockUnderflow
	}
	it.Stock += delta
	m.items[id] = it
	return it.Stock, nil
}

type repoRestocker struct{ repo *mockRepo }

func (r repoRestocker) Release(ctx context.Context, id string, qty int) (int, error) {
	if qty < 1 {
		return 0, fault.New(fault.InvalidInput, fault.CodeInvalidQuantity, "quantity must be positive")
	}
	return r.repo.AdjustStock(ctx, id, qty)
}

func newTestService(items ...Item) (*Service, *mockRepo) {
	repo := newMockRepo(items...)
	svc := NewService(repo, repoRestocker{repo: repo})
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc, repo
}

// --- Tests ---

func TestService_Create(t *testing.T) {
	svc, repo := newTestService()

	item, err := svc.Create(context.Background(), Item{Name: "Mouse", Price: decimal.NewFromInt(1000), Stock: 50})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 2026, item.CreatedAt.Year())
	assert.Equal(t, item.CreatedAt, item.UpdatedAt)
	assert.Contains(t, repo.items, item.ID)
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		item Item
		code string
	}{
		{name: "blank name", item: Item{Name: "  "}, code: fault.CodeInvalidArgument},
		{name: "negative price", item: Item{Name: "X", Price: decimal.NewFromInt(-1)}, code: fault.CodeInvalidAmount},
		{name: "negative stock", item: Item{Name: "X", Stock: -1}, code: fault.CodeInvalidQuantity},
		{name: "sub-cent price", item: Item{Name: "X", Price: decimal.RequireFromString("0.005")}, code: fault.CodeInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			_, err := svc.Create(context.Background(), tt.item)
			require.Error(t, err)
			assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
			assert.Equal(t, tt.code, fault.CodeOf(err))
			assert.Empty(t, repo.items)
		})
	}
}

func TestService_CreateAcceptsTrailingZeros(t *testing.T) {
	svc, _ := newTestService()

	item, err := svc.Create(context.Background(), Item{Name: "Cable", Price: decimal.RequireFromString("10.500")})
	require.NoError(t, err)
	assert.Equal(t, "10.50", item.Price.StringFixed(2))
}

func TestService_UpdateRejectsSubCentPrice(t *testing.T) {
	svc, repo := newTestService(Item{ID: "m", Name: "Mouse", Price: decimal.NewFromInt(1000), Stock: 7})

	price := decimal.RequireFromString("9.999")
	_, err := svc.Update(context.Background(), "m", Update{Price: &price})
	assert.Equal(t, fault.CodeInvalidAmount, fault.CodeOf(err))
	assert.True(t, decimal.NewFromInt(1000).Equal(repo.items["m"].Price))
}

func TestService_CreateRepoError(t *testing.T) {
	svc, repo := newTestService()
	repo.err = errors.New("db down")

	_, err := svc.Create(context.Background(), Item{Name: "Mouse"})
	require.ErrorContains(t, err, "db down")
}

func TestService_UpdatePartial(t *testing.T) {
	svc, _ := newTestService(Item{ID: "m", Name: "Mouse", Description: "Wireless", Price: decimal.NewFromInt(1000), Stock: 7})

	price := decimal.NewFromInt(1200)
	item, err := svc.Update(context.Background(), "m", Update{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "Mouse", item.Name)
	assert.Equal(t, "Wireless", item.Description)
	assert.True(t, item.Price.Equal(price))
	assert.Equal(t, 7, item.Stock)

	blank := ""
	_, err = svc.Update(context.Background(), "m", Update{Name: &blank})
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))

	_, err = svc.Update(context.Background(), "missing", Update{Price: &price})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestService_Search(t *testing.T) {
	svc, _ := newTestService(
		Item{ID: "a", Name: "Gaming Laptop"},
		Item{ID: "b", Name: "Wireless Mouse"},
	)

	found, err := svc.Search(context.Background(), "laptop")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].ID)

	all, err := svc.Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestService_Restock(t *testing.T) {
	svc, _ := newTestService(Item{ID: "m", Name: "Mouse", Stock: 2})

	item, err := svc.Restock(context.Background(), "m", 5)
	require.NoError(t, err)
	assert.Equal(t, 7, item.Stock)

	_, err = svc.Restock(context.Background(), "m", 0)
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))

	_, err = svc.Restock(context.Background(), "missing", 1)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestService_Delete(t *testing.T) {
	svc, repo := newTestService(Item{ID: "m", Name: "Mouse"})

	require.NoError(t, svc.Delete(context.Background(), "m"))
	assert.Empty(t, repo.items)
	require.ErrorIs(t, svc.Delete(context.Background(), "m"), ErrItemNotFound)
}

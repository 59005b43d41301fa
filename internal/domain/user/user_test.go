package user

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

type mockRepo struct {
	users []User
	err   error
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	m.users = append(m.users, *u)
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(context.Context) ([]User, error) { return m.users, m.err }

func (m *mockRepo) Delete(_ context.Context, id string) error {
	for i, u := range m.users {
		if u.ID == id {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func TestService_Create(t *testing.T) {
	svc := NewService(&mockRepo{})

	u, err := svc.Create(context.Background(), User{Username: " john_doe ", Email: "john@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "john_doe", u.Username)
	assert.Equal(t, DefaultRole, u.Role)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
}

func TestService_CreateRejects(t *testing.T) {
	tests := []struct {
		name string
		user User
		kind fault.Kind
	}{
		{name: "missing username", user: User{Email: "a@example.com"}, kind: fault.InvalidInput},
		{name: "bad email", user: User{Username: "a", Email: "not-an-email"}, kind: fault.InvalidInput},
		{name: "taken username", user: User{Username: "john_doe", Email: "other@example.com"}, kind: fault.Conflict},
		{name: "taken email", user: User{Username: "other", Email: "john@example.com"}, kind: fault.Conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{users: []User{{ID: "u1", Username: "john_doe", Email: "john@example.com"}}}
			_, err := NewService(repo).Create(context.Background(), tt.user)
			require.Error(t, err)
			assert.Equal(t, tt.kind, fault.KindOf(err))
			assert.Len(t, repo.users, 1)
		})
	}
}

func TestService_CreateWrapsStorageError(t *testing.T) {
	_, err := NewService(&mockRepo{err: errors.New("conn reset")}).
		Create(context.Background(), User{Username: "a", Email: "a@example.com"})
	require.ErrorContains(t, err, "conn reset")
	assert.Equal(t, fault.Internal, fault.KindOf(err))
}

func TestService_Delete(t *testing.T) {
	repo := &mockRepo{users: []User{{ID: "u1", Username: "john_doe"}}}
	svc := NewService(repo)

	require.NoError(t, svc.Delete(context.Background(), "u1"))
	require.ErrorIs(t, svc.Delete(context.Background(), "u1"), ErrNotFound)

	_, err := svc.Get(context.Background(), "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

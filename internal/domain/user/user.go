// Package user keeps the accounts that own carts and orders.
package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = fault.New(fault.NotFound, fault.CodeUserNotFound, "user not found")
	// ErrDuplicate is returned when the username or email is taken.
	ErrDuplicate = fault.New(fault.Conflict, fault.CodeDuplicateUser, "username or email already registered")
)

// DefaultRole is assigned when none is given.
const DefaultRole = "customer"

// User is an account.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      string
	CreatedAt time.Time
}

// Repository persists users. Create returns ErrDuplicate on a taken
// username or email.
type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id string) error
}

// Service implements account management.
type Service struct {
	users Repository
	now   func() time.Time
}

// NewService creates a user Service.
func NewService(users Repository) *Service {
	return &Service{users: users, now: time.Now}
}

// Create registers a user.
func (s *Service) Create(ctx context.Context, u User) (*User, error) {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.TrimSpace(u.Email)
	if u.Username == "" {
		return nil, fault.Invalid("username is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return nil, fault.Invalid("invalid email %q", u.Email)
	}
	if u.Role == "" {
		u.Role = DefaultRole
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = s.now().UTC()

	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create user")
	}
	return &u, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.Get(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.users.Delete(ctx, id)
}

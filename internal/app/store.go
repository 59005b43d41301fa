package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
	"github.com/xenking/kart-fulfillment/internal/domain/user"
	"github.com/xenking/kart-fulfillment/internal/storage/memory"
	"github.com/xenking/kart-fulfillment/internal/storage/postgres"
	"github.com/xenking/kart-fulfillment/pkg/health"
)

// repositories is the persistence backend the services run on.
type repositories struct {
	items   catalog.Repository
	carts   cart.Repository
	orders  order.Repository
	intents payment.Repository
	users   user.Repository
}

// openStore connects to PostgreSQL when a URL is configured and falls back
// to the in-memory store otherwise. The returned func releases the backend.
func openStore(ctx context.Context, lg *zap.Logger, databaseURL string, hs *health.Health) (*repositories, func(), error) {
	if databaseURL == "" {
		lg.Warn("No database URL configured, state is kept in memory")
		s := memory.New()
		return &repositories{
			items:   s.Items(),
			carts:   s.Carts(),
			orders:  s.Orders(),
			intents: s.Intents(),
			users:   s.Users(),
		}, func() {}, nil
	}

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	hs.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool.Ping))

	return &repositories{
		items:   postgres.NewItemRepository(pool),
		carts:   postgres.NewCartRepository(pool),
		orders:  postgres.NewOrderRepository(pool),
		intents: postgres.NewIntentRepository(pool),
		users:   postgres.NewUserRepository(pool),
	}, pool.Close, nil
}

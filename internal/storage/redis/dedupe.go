// Package redis keeps short-lived delivery markers in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

// DefaultDedupeTTL is how long a delivery marker is kept.
const DefaultDedupeTTL = 24 * time.Hour

var _ payment.Deduper = (*Deduper)(nil)

// Deduper claims notification delivery ids with SET NX.
type Deduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewDeduper returns a Deduper keeping markers for ttl.
func NewDeduper(client redis.UniversalClient, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Deduper{client: client, ttl: ttl}
}

// Claim marks key as seen and reports whether it was new.
func (d *Deduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, deliveryKey(key), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "claim delivery")
	}
	return ok, nil
}

// Forget drops the marker so the delivery is processed again.
func (d *Deduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, deliveryKey(key)).Err(); err != nil {
		return errors.Wrap(err, "forget delivery")
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (d *Deduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

func deliveryKey(id string) string {
	return "kart:delivery:" + id
}

package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bizops/internal/orders"
	"github.com/redis/go-redis/v9"
)

// InvoiceSequencer issues daily invoice numbers from a Redis counter, so
// several API processes share one sequence. The counter is seeded from
// storage the first time a day is seen.
type InvoiceSequencer struct {
	RDB *redis.Client
}

var _ orders.Sequencer = (*InvoiceSequencer)(nil)

func (s *InvoiceSequencer) Next(ctx context.Context, prefix string, seed orders.SeedFunc) (int, error) {
	key := fmt.Sprintf(KeyInvoiceSeq, prefix)

	exists, err := s.RDB.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("invoice counter %s: %w", prefix, err)
	}
	if exists == 0 {
		n, err := seed(ctx, prefix)
		if err != nil {
			return 0, err
		}
		// loses to a concurrent seeder, which used the same storage
		if err := s.RDB.SetNX(ctx, key, n, TTLInvoiceSeq).Err(); err != nil {
			return 0, fmt.Errorf("seed invoice counter %s: %w", prefix, err)
		}
	}

	n, err := s.RDB.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr invoice counter %s: %w", prefix, err)
	}
	return int(n), nil
}

// TokenCache keeps share tokens in Redis for public invoice lookups.
type TokenCache struct {
	RDB *redis.Client
}

var _ orders.TokenCache = (*TokenCache)(nil)

func (c *TokenCache) Put(ctx context.Context, token, orderID string) error {
	return c.RDB.Set(ctx, fmt.Sprintf(KeyShareToken, token), orderID, TTLShareToken).Err()
}

// Lookup returns "" without error on a cache miss.
func (c *TokenCache) Lookup(ctx context.Context, token string) (string, error) {
	id, err := c.RDB.Get(ctx, fmt.Sprintf(KeyShareToken, token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

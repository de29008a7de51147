package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConsumedTokens is a short-lived denylist of token fingerprints.
type ConsumedTokens struct {
	client redis.UniversalClient
	prefix string
}

func NewConsumedTokens(client redis.UniversalClient, prefix string) *ConsumedTokens {
	if prefix == "" {
		prefix = "auth:consumed:"
	}
	return &ConsumedTokens{client: client, prefix: prefix}
}

// Consume records the fingerprint and reports whether this call was the
// first to do so.
func (c *ConsumedTokens) Consume(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.client.SetNX(ctx, c.prefix+fingerprint, 1, ttl).Result()
}

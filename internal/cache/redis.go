package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"axionslab/auth/internal/config"
)

// NewRedisClient connects to a single node, or to a cluster when Addr lists
// several comma-separated nodes.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	addrs := strings.Split(cfg.Addr, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

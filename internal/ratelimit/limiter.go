// Package ratelimit implements a fixed-window request counter in Redis.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const allowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`

type evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type Limiter struct {
	client evaler
	limit  int
	window time.Duration
	prefix string
}

func New(client redis.UniversalClient, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{client: client, limit: limit, window: window, prefix: "auth:rl:"}
}

// Allow counts one hit against key. A Redis failure lets the request
// through; the caller gets the error to log.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	count, err := l.client.Eval(ctx, allowScript, []string{l.prefix + key}, l.window.Milliseconds()).Int()
	if err != nil {
		return true, err
	}
	return count <= l.limit, nil
}

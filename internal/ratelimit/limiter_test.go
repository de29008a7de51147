package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEvaler struct {
	keys   []string
	args   []interface{}
	result int64
	err    error
}

func (m *mockEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.keys = keys
	m.args = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestAllow_Mock(t *testing.T) {
	t.Run("nil limiter fails open", func(t *testing.T) {
		var l *Limiter
		ok, err := l.Allow(context.Background(), "1.2.3.4")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := &Limiter{client: &mockEvaler{result: 1}, limit: 3, window: time.Minute}
		ok, _ := l.Allow(context.Background(), "  ")
		assert.False(t, ok)
	})

	t.Run("key and window passed to script", func(t *testing.T) {
		mock := &mockEvaler{result: 3}
		l := &Limiter{client: mock, limit: 3, window: 2 * time.Minute, prefix: "auth:rl:"}
		ok, err := l.Allow(context.Background(), "Login:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"auth:rl:login:1.2.3.4"}, mock.keys)
		assert.Equal(t, []interface{}{int64(120000)}, mock.args)
	})

	t.Run("over limit", func(t *testing.T) {
		l := &Limiter{client: &mockEvaler{result: 4}, limit: 3, window: time.Minute}
		ok, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("redis error fails open", func(t *testing.T) {
		l := &Limiter{client: &mockEvaler{err: errors.New("boom")}, limit: 3, window: time.Minute}
		ok, err := l.Allow(context.Background(), "k")
		assert.Error(t, err)
		assert.True(t, ok)
	})
}

func TestAllow_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := New(client, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(61 * time.Second)
	ok, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok)
}

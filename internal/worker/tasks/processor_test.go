package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	before time.Time
	calls  int
	err    error
}

func (f *fakePurger) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	f.calls++
	f.before = before
	return 3, f.err
}

func TestSessionSweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	purger := &fakePurger{}
	p := NewProcessor(zerolog.Nop(), purger, 24*time.Hour)
	p.now = func() time.Time { return now }

	err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"type": "session_sweep"}})
	require.NoError(t, err)
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, now.Add(-24*time.Hour), purger.before)
}

func TestSessionSweepFailureIsReturned(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	p := NewProcessor(zerolog.Nop(), purger, time.Hour)

	err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"type": "session_sweep"}})
	assert.Error(t, err)
}

func TestUnknownTaskIsDropped(t *testing.T) {
	purger := &fakePurger{}
	p := NewProcessor(zerolog.Nop(), purger, time.Hour)

	err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"type": "thumbnail"}})
	assert.NoError(t, err)
	assert.Zero(t, purger.calls)
}

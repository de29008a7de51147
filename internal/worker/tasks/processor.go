package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"axionslab/auth/internal/jobs"
)

// SessionPurger removes sessions that expired or went idle before a cutoff.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type Processor struct {
	logger    zerolog.Logger
	sessions  SessionPurger
	retention time.Duration
	now       func() time.Time
}

type TaskPayload struct {
	Type string `json:"type"`
}

// NewProcessor keeps inactive sessions for retention before the sweep
// deletes them.
func NewProcessor(logger zerolog.Logger, sessions SessionPurger, retention time.Duration) *Processor {
	return &Processor{
		logger:    logger,
		sessions:  sessions,
		retention: retention,
		now:       time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case jobs.TaskSessionSweep:
		return p.handleSessionSweep(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleSessionSweep(ctx context.Context) error {
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.sessions.PurgeExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	p.logger.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("session sweep finished")
	return nil
}

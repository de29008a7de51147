package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const TaskSessionSweep = "session_sweep"

// Scheduler enqueues periodic maintenance tasks onto the worker stream.
type Scheduler struct {
	cron     *cron.Cron
	queue    redis.UniversalClient
	stream   string
	schedule string
	log      zerolog.Logger
}

func NewScheduler(queue redis.UniversalClient, stream, schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = "0 */15 * * * *"
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		queue:    queue,
		stream:   stream,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Str("stream", s.stream).Msg("maintenance scheduler started")
	return nil
}

// Stop waits up to five seconds for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueSweep() {
	if err := s.enqueueTask(context.Background(), map[string]any{
		"type": TaskSessionSweep,
	}); err != nil {
		s.log.Error().Err(err).Msg("enqueue session sweep failed")
	}
}

func (s *Scheduler) enqueueTask(ctx context.Context, payload map[string]any) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: payload,
	}).Result()
	return err
}

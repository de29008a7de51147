package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"axionslab/auth/internal/cache"
	"axionslab/auth/internal/config"
	"axionslab/auth/internal/database"
	"axionslab/auth/internal/log"
	"axionslab/auth/internal/repository"
	"axionslab/auth/internal/worker/queue"
	"axionslab/auth/internal/worker/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "auth-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	var purger tasks.SessionPurger
	switch cfg.Sessions.Backend {
	case "redis":
		purger = repository.NewRedisSessionStore(client, "")
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pool.Close()
		purger = repository.NewSessionRepository(pool)
	}

	processor := tasks.NewProcessor(logger, purger, cfg.Worker.Retention)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	logger.Info().Str("stream", cfg.Worker.Stream).Str("group", cfg.Worker.Group).Msg("worker started")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}

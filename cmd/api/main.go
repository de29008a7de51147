package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"axionslab/auth/internal/cache"
	"axionslab/auth/internal/config"
	"axionslab/auth/internal/database"
	"axionslab/auth/internal/handlers"
	"axionslab/auth/internal/jobs"
	"axionslab/auth/internal/log"
	"axionslab/auth/internal/metrics"
	"axionslab/auth/internal/middleware"
	"axionslab/auth/internal/oauth"
	"axionslab/auth/internal/policy"
	"axionslab/auth/internal/ratelimit"
	"axionslab/auth/internal/repository"
	"axionslab/auth/internal/security"
	"axionslab/auth/internal/server"
	"axionslab/auth/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "auth-api")

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pol := policy.New(cfg.Access, cfg.Domains)
	tokens := security.NewTokenService(cfg.Security)
	users := repository.NewUserRepository(dbPool)

	var sessionStore service.SessionStore
	switch cfg.Sessions.Backend {
	case "redis":
		sessionStore = repository.NewRedisSessionStore(redisClient, "")
	default:
		sessionStore = repository.NewSessionRepository(dbPool)
	}
	logger.Info().Str("backend", cfg.Sessions.Backend).Msg("session store selected")

	sessions := service.NewSessionService(
		sessionStore,
		users,
		repository.NewConsumedTokens(redisClient, ""),
		tokens,
		pol,
		cfg.Security.SessionTTL,
		logger,
	)
	cross := service.NewCrossDomainAuthService(sessions, tokens, pol, cfg.Domains.LoginPath, logger)
	providers := oauth.NewRegistryFromConfig(cfg.OAuth)
	auth := service.NewAuthService(
		users,
		security.NewArgon2Hasher(security.DefaultArgon2Params),
		sessions,
		cross,
		providers,
		logger,
	)
	logger.Info().Strs("providers", providers.Names()).Msg("oauth providers configured")

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:      logger,
		Config:   cfg,
		Sessions: sessions,
		Cross:    cross,
		Auth:     auth,
		Metrics:  metrics.New(registry),
		Limiter:  limiter,
		Checks: map[string]handlers.HealthCheck{
			"database": dbPool.Ping,
			"cache":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, pol, registry)

	scheduler := jobs.NewScheduler(redisClient, cfg.Worker.Stream, cfg.Worker.SweepSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient redis.UniversalClient) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}

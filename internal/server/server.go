package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"axionslab/auth/internal/config"
	"axionslab/auth/internal/handlers"
	"axionslab/auth/internal/middleware"
	"axionslab/auth/internal/policy"
)

type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
	cfg    *config.AppConfig
}

// NewHTTPServer mounts the handler set at the root. Browsers on any allowed
// domain may call it with credentials.
func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, handlerSet handlers.HandlerSet, pol *policy.Policy, gatherer prometheus.Gatherer) *HTTPServer {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = true
	engine.RedirectFixedPath = true

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.AllowCORSOrigins, func(origin string) bool {
			return pol.IsAllowedDomain(policy.NormalizeDomain(origin))
		}),
	)

	handlerSet.Register(&engine.RouterGroup)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &HTTPServer{
		engine: engine,
		server: srv,
		log:    log,
		cfg:    cfg,
	}
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

func (s *HTTPServer) Start() error {
	s.log.Info().
		Str("addr", s.server.Addr).
		Str("identity_domain", s.cfg.Domains.Identity).
		Msg("http server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

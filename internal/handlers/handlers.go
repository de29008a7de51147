package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"axionslab/auth/internal/config"
	"axionslab/auth/internal/metrics"
	"axionslab/auth/internal/middleware"
	"axionslab/auth/internal/models"
	"axionslab/auth/internal/service"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Log      zerolog.Logger
	Config   *config.AppConfig
	Sessions *service.SessionService
	Cross    *service.CrossDomainAuthService
	Auth     *service.AuthService
	Metrics  *metrics.Metrics
	Limiter  middleware.Limiter
	Checks   map[string]HealthCheck
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	sessions *service.SessionService
	cross    *service.CrossDomainAuthService
	auth     *service.AuthService
	metrics  *metrics.Metrics
	limiter  middleware.Limiter
	checks   map[string]HealthCheck
}

func NewHandlerSet(deps Deps) HandlerSet {
	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Config,
		sessions: deps.Sessions,
		cross:    deps.Cross,
		auth:     deps.Auth,
		metrics:  deps.Metrics,
		limiter:  deps.Limiter,
		checks:   deps.Checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	limited := middleware.RateLimit(h.limiter, h.log)

	auth := router.Group("/auth")
	{
		auth.POST("/login", limited, h.Login)
		auth.POST("/register", limited, h.RegisterUser)
		auth.POST("/refresh", limited, h.Refresh)

		auth.GET("/oauth/:provider", h.OAuthStart)
		auth.POST("/oauth/callback", limited, h.OAuthCallback)

		auth.GET("/check-session", h.CheckSession)
		auth.POST("/cross-domain/callback", limited, h.CrossDomainCallback)
		auth.GET("/cross-domain/status", h.CrossDomainStatus)
		auth.POST("/sessions/exchange", limited, h.ExchangeTempToken)
		auth.GET("/app-info", h.AppInfo)
		auth.GET("/domains/validate", h.ValidateDomain)
	}

	protected := router.Group("/auth")
	protected.Use(middleware.Auth(h.sessions, h.log))
	{
		protected.POST("/logout", h.Logout)
		protected.POST("/logout-all", h.LogoutAll)
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.POST("/cross-domain/initiate", h.InitiateCrossDomain)
		protected.POST("/sessions/temp", h.CreateTempToken)
	}

	admin := router.Group("/auth/admin")
	admin.Use(
		middleware.Auth(h.sessions, h.log),
		middleware.RequireRoles(models.UserRoleAdmin, models.UserRoleSuperAdmin),
	)
	{
		admin.GET("/users/:id/sessions", h.AdminListSessions)
		admin.POST("/users/:id/logout-all", h.AdminLogoutAll)
	}
}

// fail writes err as a JSON error. Service errors carry their own status and
// caller-safe message; anything else is a 500.
func (h HandlerSet) fail(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		if svcErr.Kind == service.KindAuthentication {
			h.log.Warn().
				Str("client_ip", c.ClientIP()).
				Str("path", c.Request.URL.Path).
				Str("reason", svcErr.Message).
				Msg("authentication failed")
		}
		c.JSON(svcErr.Kind.Status(), gin.H{"error": svcErr.Message})
		return
	}

	h.log.Error().Err(err).
		Str("path", c.Request.URL.Path).
		Str("request_id", middleware.RequestIDFrom(c)).
		Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
}

func (h HandlerSet) badRequest(c *gin.Context, msg string) {
	h.fail(c, service.ValidationError(msg))
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"axionslab/auth/internal/models"
	"axionslab/auth/internal/service"
)

const (
	SessionCookie = "axl_session"

	accessTokenKey    = "access_token"
	currentSessionKey = "current_session"
	currentUserKey    = "current_user"
)

type SessionValidator interface {
	ValidateSession(ctx context.Context, accessToken string) (models.Session, error)
}

// AccessToken reads the bearer token from the Authorization header, falling
// back to the session cookie.
func AccessToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
		return ""
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

func Auth(sessions SessionValidator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := AccessToken(c)
		if token == "" {
			logAuthFailure(log, c, "missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			return
		}

		session, err := sessions.ValidateSession(c.Request.Context(), token)
		if err != nil {
			if service.IsNotAuthenticated(err) {
				logAuthFailure(log, c, "invalid session")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": service.ErrNotAuthenticated.Message})
				return
			}
			log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("session validation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}

		c.Set(accessTokenKey, token)
		c.Set(currentSessionKey, session)
		c.Set(currentUserKey, session.User.User())

		c.Next()
	}
}

// logAuthFailure records who failed to authenticate and where. The token
// itself is never logged.
func logAuthFailure(log zerolog.Logger, c *gin.Context, reason string) {
	log.Warn().
		Str("client_ip", c.ClientIP()).
		Str("path", c.Request.URL.Path).
		Str("reason", reason).
		Msg("authentication failed")
}

func CurrentSession(c *gin.Context) (models.Session, bool) {
	v, ok := c.Get(currentSessionKey)
	if !ok {
		return models.Session{}, false
	}
	session, ok := v.(models.Session)
	return session, ok
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func CurrentAccessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}

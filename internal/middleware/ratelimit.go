package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit counts requests per route and client IP. Limiter errors are
// logged and the request is let through.
func RateLimit(limiter Limiter, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.FullPath() + ":" + c.ClientIP()
		ok, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("rate limiter unavailable")
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		if user, ok := CurrentUser(c); ok {
			event = event.Str("user_id", user.ID)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("host", c.Request.Host).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("request_id", RequestIDFrom(c)).
			Msg("http request")
	}
}

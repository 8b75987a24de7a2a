package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// quietRoutes are polled by infrastructure and logged at debug on success.
var quietRoutes = map[string]struct{}{
	"/api/healthz": {},
	"/metrics":     {},
}

// Logger writes one line per request with the caller's id once auth has run.
func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		reqLog := RequestLogger(c, log)

		var event *zerolog.Event
		switch _, quiet := quietRoutes[route]; {
		case status >= 500:
			event = reqLog.Error()
		case status >= 400:
			event = reqLog.Warn()
		case quiet:
			event = reqLog.Debug()
		default:
			event = reqLog.Info()
		}

		if subject, ok := SubjectFrom(c); ok {
			event = event.Str("user_id", subject.ID)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

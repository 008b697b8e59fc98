package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Health probes and metric scrapes are not logged
var unloggedPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Logger writes one line per request once the handler chain has finished.
// The query string is left out: session search terms carry trader names.
// Server errors log at error, client errors at warn.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if unloggedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"correlation_id", GetCorrelationID(c),
		}
		if p, ok := GetPrincipal(c); ok {
			attrs = append(attrs, "user_id", p.UserID.String())
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("HTTP request", attrs...)
		case status >= 400:
			logger.Warn("HTTP request", attrs...)
		default:
			logger.Info("HTTP request", attrs...)
		}
	}
}

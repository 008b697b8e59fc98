package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500 envelope. A panic caused by the
// client going away (broken pipe, reset) is logged at warn and the request is
// aborted without a body, since nobody is left to read it.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			requestLogger := logger.With(
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"correlation_id", GetCorrelationID(c),
			)
			if p, ok := GetPrincipal(c); ok {
				requestLogger = requestLogger.With("user_id", p.UserID.String())
			}

			if err, ok := r.(error); ok && connectionLost(err) {
				requestLogger.Warn("Client connection lost", "error", err)
				c.Abort()
				return
			}

			requestLogger.Error("Panic recovered", "error", r, "stack", string(debug.Stack()))

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"data": nil,
				"error": gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "An internal server error occurred",
				},
				"correlation_id": GetCorrelationID(c),
			})
		}()

		c.Next()
	}
}

func connectionLost(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/platform/auth"
	"github.com/gin-gonic/gin"
)

const (
	// PrincipalKey is the key used to store the signed-in caller in the context
	PrincipalKey = "principal"

	// tokenQueryParam carries the token on websocket upgrades, where browsers cannot set headers
	tokenQueryParam = "token"
)

// Authenticator resolves a bearer token to the signed-in caller
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*service.Principal, error)
}

// Auth rejects requests without a live token and stores the Principal for handlers
func Auth(logger *slog.Logger, authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in required")
			return
		}

		principal, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Session expired, sign in again")
				return
			}
			logger.Error("Failed to authenticate request", "path", c.Request.URL.Path, "error", err)
			abortWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
			return
		}

		c.Set(PrincipalKey, *principal)
		c.Next()
	}
}

// GetPrincipal returns the caller stored by Auth
func GetPrincipal(c *gin.Context) (service.Principal, bool) {
	if v, exists := c.Get(PrincipalKey); exists {
		if p, ok := v.(service.Principal); ok {
			return p, true
		}
	}
	return service.Principal{}, false
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if c.Request.Method == http.MethodGet && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query(tokenQueryParam)
	}
	return ""
}

func abortWithError(c *gin.Context, status int, code, message string) {
	response := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}

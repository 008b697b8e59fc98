package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/platform/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (*service.Principal, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Principal), args.Error(1)
}

func newAuthRouter(authenticator Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	router := gin.New()
	router.Use(CorrelationID())
	router.Use(Auth(logger, authenticator))
	router.GET("/me", func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID.String(), "session_id": p.SessionID})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()

	t.Run("BearerHeader", func(t *testing.T) {
		authn := new(MockAuthenticator)
		authn.On("Authenticate", mock.Anything, "good-token").
			Return(&service.Principal{UserID: userID, SessionID: "as-1"}, nil).Once()

		req, _ := http.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rr := httptest.NewRecorder()
		newAuthRouter(authn).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, userID.String(), body["user_id"])
		assert.Equal(t, "as-1", body["session_id"])
		authn.AssertExpectations(t)
	})

	t.Run("MissingToken", func(t *testing.T) {
		authn := new(MockAuthenticator)

		req, _ := http.NewRequest(http.MethodGet, "/me", nil)
		rr := httptest.NewRecorder()
		newAuthRouter(authn).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"code":"UNAUTHORIZED"`)
		assert.Contains(t, rr.Body.String(), `"correlation_id"`)
		authn.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})

	t.Run("QueryTokenIgnoredWithoutUpgrade", func(t *testing.T) {
		authn := new(MockAuthenticator)

		req, _ := http.NewRequest(http.MethodGet, "/me?token=good-token", nil)
		rr := httptest.NewRecorder()
		newAuthRouter(authn).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("QueryTokenOnWebsocketUpgrade", func(t *testing.T) {
		authn := new(MockAuthenticator)
		authn.On("Authenticate", mock.Anything, "ws-token").
			Return(&service.Principal{UserID: userID, SessionID: "as-2"}, nil).Once()

		req, _ := http.NewRequest(http.MethodGet, "/me?token=ws-token", nil)
		req.Header.Set("Upgrade", "websocket")
		rr := httptest.NewRecorder()
		newAuthRouter(authn).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("RevokedToken", func(t *testing.T) {
		authn := new(MockAuthenticator)
		authn.On("Authenticate", mock.Anything, "old-token").Return(nil, auth.ErrInvalidToken).Once()

		req, _ := http.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer old-token")
		rr := httptest.NewRecorder()
		newAuthRouter(authn).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		authn := new(MockAuthenticator)
		authn.On("Authenticate", mock.Anything, "token").Return(nil, errors.New("redis down")).Once()

		req, _ := http.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer token")
		rr := httptest.NewRecorder()
		newAuthRouter(authn).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

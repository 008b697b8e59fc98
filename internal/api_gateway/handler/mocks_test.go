package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/chilli-trade-ledger/internal/api_gateway/middleware"
	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/trade"
	"github.com/chilli-trade-ledger/internal/domain/user"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) SignUp(ctx context.Context, email, password, displayName string) (*user.User, error) {
	args := m.Called(ctx, email, password, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockAuthService) SignIn(ctx context.Context, email, password string) (*service.SignInResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SignInResult), args.Error(1)
}

func (m *MockAuthService) SignOut(ctx context.Context, p service.Principal) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockAuthService) Authenticate(ctx context.Context, token string) (*service.Principal, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Principal), args.Error(1)
}

func (m *MockAuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockAuthService) RevokeAllSessions(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockWorkspaceService struct {
	mock.Mock
}

func (m *MockWorkspaceService) result(args mock.Arguments) (session.Workspace, error) {
	ws, _ := args.Get(0).(session.Workspace)
	return ws, args.Error(1)
}

func (m *MockWorkspaceService) Get(ctx context.Context, userID uuid.UUID) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID))
}

func (m *MockWorkspaceService) Reset(ctx context.Context, userID uuid.UUID) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID))
}

func (m *MockWorkspaceService) Rename(ctx context.Context, userID uuid.UUID, name string) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID, name))
}

func (m *MockWorkspaceService) EditDraft(ctx context.Context, userID uuid.UUID, side trade.Side, edit trade.DraftEdit) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID, side, edit))
}

func (m *MockWorkspaceService) AddDraftEntry(ctx context.Context, userID uuid.UUID, side trade.Side, in trade.EntryInput) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID, side, in))
}

func (m *MockWorkspaceService) RemoveDraftEntry(ctx context.Context, userID uuid.UUID, side trade.Side, entryID string) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID, side, entryID))
}

func (m *MockWorkspaceService) FinalizeDraft(ctx context.Context, userID uuid.UUID, side trade.Side) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID, side))
}

func (m *MockWorkspaceService) RemoveRecord(ctx context.Context, userID uuid.UUID, side trade.Side, recordID string) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID, side, recordID))
}

func (m *MockWorkspaceService) UpdatePayment(ctx context.Context, userID uuid.UUID, side trade.Side, recordID string, amount decimal.Decimal, mode trade.PaymentMode) (session.Workspace, error) {
	return m.result(m.Called(ctx, userID, side, recordID, amount, mode))
}

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) List(ctx context.Context, userID uuid.UUID, query string) ([]*session.TradeSession, error) {
	args := m.Called(ctx, userID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*session.TradeSession), args.Error(1)
}

func (m *MockSessionService) RefreshList(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*session.TradeSession), args.Error(1)
}

func (m *MockSessionService) Save(ctx context.Context, userID uuid.UUID, correlationID string) (*session.TradeSession, error) {
	args := m.Called(ctx, userID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.TradeSession), args.Error(1)
}

func (m *MockSessionService) Load(ctx context.Context, userID, sessionID uuid.UUID) (session.Workspace, error) {
	args := m.Called(ctx, userID, sessionID)
	ws, _ := args.Get(0).(session.Workspace)
	return ws, args.Error(1)
}

func (m *MockSessionService) Delete(ctx context.Context, userID, sessionID uuid.UUID, correlationID string) error {
	return m.Called(ctx, userID, sessionID, correlationID).Error(0)
}

type MockChangeFeed struct {
	mock.Mock
}

func (m *MockChangeFeed) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID, authSessionID string) error {
	return m.Called(w, r, userID, authSessionID).Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupTestRouter returns a gin engine that signs every request in as p
// unless p is nil.
func setupTestRouter(p *service.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CorrelationID())
	if p != nil {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.PrincipalKey, *p)
			c.Next()
		})
	}
	return r
}

func testPrincipal() *service.Principal {
	return &service.Principal{UserID: uuid.New(), Email: "ravi@example.com", SessionID: "auth-1"}
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// decodeData unmarshals the envelope's data field into out and returns the envelope
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) Response {
	t.Helper()
	var envelope struct {
		Data          json.RawMessage `json:"data"`
		Error         *ErrorInfo      `json:"error"`
		CorrelationID string          `json:"correlation_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return Response{Error: envelope.Error, CorrelationID: envelope.CorrelationID}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) *ErrorInfo {
	t.Helper()
	resp := decodeData(t, rr, nil)
	require.NotNil(t, resp.Error, "error field should be set")
	return resp.Error
}

package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/chilli-trade-ledger/internal/data/redis"
	"github.com/chilli-trade-ledger/internal/domain/outbox"
	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/chilli-trade-ledger/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*session.TradeSession), args.Error(1)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*session.TradeSession, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.TradeSession), args.Error(1)
}

func (m *MockSessionRepository) Create(ctx context.Context, s *session.TradeSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionRepository) Update(ctx context.Context, s *session.TradeSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockSessionRepository) WithTx(tx pgx.Tx) session.Repository {
	return m
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return m
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, u *user.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

type MockAuthSessionRepository struct {
	mock.Mock
}

func (m *MockAuthSessionRepository) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*redis.AuthSession, error) {
	args := m.Called(ctx, userID, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redis.AuthSession), args.Error(1)
}

func (m *MockAuthSessionRepository) Get(ctx context.Context, id string) (*redis.AuthSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redis.AuthSession), args.Error(1)
}

func (m *MockAuthSessionRepository) Touch(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAuthSessionRepository) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAuthSessionRepository) RevokeAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockSessionListCache struct {
	mock.Mock
}

func (m *MockSessionListCache) Get(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, bool, error) {
	args := m.Called(ctx, userID)
	var sessions []*session.TradeSession
	if args.Get(0) != nil {
		sessions = args.Get(0).([]*session.TradeSession)
	}
	return sessions, args.Bool(1), args.Error(2)
}

func (m *MockSessionListCache) Set(ctx context.Context, userID uuid.UUID, sessions []*session.TradeSession) error {
	args := m.Called(ctx, userID, sessions)
	return args.Error(0)
}

func (m *MockSessionListCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// memWorkspaceStore keeps workspaces in a map. err, when set, fails every call.
type memWorkspaceStore struct {
	mu   sync.Mutex
	data map[uuid.UUID]session.Workspace
	err  error
}

func newMemWorkspaceStore() *memWorkspaceStore {
	return &memWorkspaceStore{data: make(map[uuid.UUID]session.Workspace)}
}

func (s *memWorkspaceStore) Get(ctx context.Context, userID uuid.UUID) (session.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return session.Workspace{}, s.err
	}
	ws, ok := s.data[userID]
	if !ok {
		return session.NewWorkspace(), nil
	}
	return ws, nil
}

func (s *memWorkspaceStore) Put(ctx context.Context, userID uuid.UUID, ws session.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[userID] = ws
	return nil
}

func (s *memWorkspaceStore) Update(ctx context.Context, userID uuid.UUID, fn func(session.Workspace) (session.Workspace, error)) (session.Workspace, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return session.Workspace{}, err
	}
	next, err := fn(current)
	if err != nil {
		return session.Workspace{}, err
	}
	if err := s.Put(ctx, userID, next); err != nil {
		return session.Workspace{}, err
	}
	return next, nil
}

func (s *memWorkspaceStore) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.data, userID)
	return nil
}

func (s *memWorkspaceStore) stored(userID uuid.UUID) (session.Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.data[userID]
	return ws, ok
}

// fakeTxExecutor runs fn with a nil transaction; the mocks ignore it.
type fakeTxExecutor struct {
	calls int
}

func (f *fakeTxExecutor) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	return fn(nil)
}

type fakeSaveLock struct {
	acquireErr error
	acquired   int
	released   int
}

func (f *fakeSaveLock) Acquire(ctx context.Context, userID uuid.UUID) (func(context.Context) error, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	return func(context.Context) error {
		f.released++
		return nil
	}, nil
}

type MockFeedDisconnector struct {
	mock.Mock
}

func (m *MockFeedDisconnector) DisconnectSession(authSessionID string) int {
	return m.Called(authSessionID).Int(0)
}

package outbox_relay

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/chilli-trade-ledger/internal/domain/outbox"
	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	return m
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockProducer) Close() error {
	return m.Called().Error(0)
}

type MockChangePublisher struct {
	mock.Mock
}

func (m *MockChangePublisher) PublishChange(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newOutboxMessage(t *testing.T, id int64, attempts int) (*outbox.Message, *shared.SessionChange) {
	t.Helper()
	change := shared.NewSessionChange(uuid.New(), uuid.New(), shared.ChangeTypeInsert, "corr-1")
	msg, err := outbox.NewMessage(change)
	require.NoError(t, err)
	msg.ID = id
	msg.Attempts = attempts
	return msg, change
}

package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/chilli-trade-ledger/internal/platform/messaging/producers"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockListRefresher struct {
	mock.Mock
}

func (m *MockListRefresher) RefreshList(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*session.TradeSession), args.Error(1)
}

type MockDLQProducer struct {
	mock.Mock
}

func (m *MockDLQProducer) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	args := m.Called(ctx, key, originalMessageValue, reason)
	return args.Error(0)
}

func (m *MockDLQProducer) Close() error {
	return m.Called().Error(0)
}

type fakePusher struct {
	mu        sync.Mutex
	connected map[uuid.UUID]bool
	pushed    map[uuid.UUID][][]byte
}

func newFakePusher(users ...uuid.UUID) *fakePusher {
	p := &fakePusher{connected: make(map[uuid.UUID]bool), pushed: make(map[uuid.UUID][][]byte)}
	for _, u := range users {
		p.connected[u] = true
	}
	return p
}

func (p *fakePusher) Push(userID uuid.UUID, payload []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed[userID] = append(p.pushed[userID], payload)
	return 1
}

func (p *fakePusher) Connected(userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected[userID]
}

func (p *fakePusher) messages(userID uuid.UUID) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pushed[userID]
}

func renderNames(change *shared.SessionChange, sessions []*session.TradeSession) interface{} {
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		names = append(names, s.SessionName)
	}
	return map[string]interface{}{"change": string(change.Type), "sessions": names}
}

func encodeChange(t *testing.T, change *shared.SessionChange) []byte {
	t.Helper()
	raw, err := json.Marshal(change)
	require.NoError(t, err)
	return raw
}

func newHandler(t *testing.T, refresher ListRefresher, pusher Pusher, dlq producers.DeadLetterPublisher, poolSize int) *ChangeEventHandler {
	t.Helper()
	h, err := NewChangeEventHandler(newTestLogger(), refresher, pusher, renderNames, dlq, poolSize, nil)
	require.NoError(t, err)
	return h
}

func TestChangeEventHandler_RefreshesAndPushes(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	refresher := new(MockListRefresher)
	pusher := newFakePusher(userID)
	h := newHandler(t, refresher, pusher, nil, 2)

	list := []*session.TradeSession{{SessionName: "March lot"}, {SessionName: "April lot"}}
	refresher.On("RefreshList", mock.Anything, userID).Return(list, nil).Once()

	change := shared.NewSessionChange(uuid.New(), userID, shared.ChangeTypeInsert, "corr-1")
	err := h.HandleMessage(ctx, []byte(userID.String()), encodeChange(t, change))
	require.NoError(t, err)
	h.Shutdown()

	msgs := pusher.messages(userID)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"change":"INSERT","sessions":["March lot","April lot"]}`, string(msgs[0]))
	refresher.AssertExpectations(t)
}

func TestChangeEventHandler_SkipsUsersWithoutConnections(t *testing.T) {
	refresher := new(MockListRefresher)
	h := newHandler(t, refresher, newFakePusher(), nil, 1)

	change := shared.NewSessionChange(uuid.New(), uuid.New(), shared.ChangeTypeDelete, "")
	require.NoError(t, h.HandleMessage(context.Background(), nil, encodeChange(t, change)))
	h.Shutdown()

	refresher.AssertNotCalled(t, "RefreshList", mock.Anything, mock.Anything)
}

func TestChangeEventHandler_FoldsChangesWhileRefreshRuns(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	refresher := new(MockListRefresher)
	pusher := newFakePusher(userID)
	h := newHandler(t, refresher, pusher, nil, 4)

	started := make(chan struct{})
	release := make(chan struct{})
	refresher.On("RefreshList", mock.Anything, userID).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]*session.TradeSession{}, nil).Once()
	refresher.On("RefreshList", mock.Anything, userID).Return([]*session.TradeSession{}, nil).Once()

	send := func(ct shared.ChangeType) {
		change := shared.NewSessionChange(uuid.New(), userID, ct, "")
		require.NoError(t, h.HandleMessage(ctx, nil, encodeChange(t, change)))
	}

	send(shared.ChangeTypeInsert)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh never started")
	}
	send(shared.ChangeTypeUpdate)
	send(shared.ChangeTypeDelete)
	close(release)
	h.Shutdown()

	refresher.AssertNumberOfCalls(t, "RefreshList", 2)
	msgs := pusher.messages(userID)
	require.Len(t, msgs, 2)
	assert.Contains(t, string(msgs[1]), `"DELETE"`, "rerun pushes the latest change")
}

func TestChangeEventHandler_DeadLetters(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Unmarshal", func(t *testing.T) {
		dlq := new(MockDLQProducer)
		h := newHandler(t, new(MockListRefresher), newFakePusher(userID), dlq, 1)
		dlq.On("PublishToDLQ", ctx, "k", []byte("not json"), mock.MatchedBy(func(reason string) bool {
			return len(reason) > len(producers.DLQReasonUnmarshal) && reason[:len(producers.DLQReasonUnmarshal)] == producers.DLQReasonUnmarshal
		})).Return(nil).Once()

		err := h.HandleMessage(ctx, []byte("k"), []byte("not json"))

		assert.NoError(t, err)
		dlq.AssertExpectations(t)
	})

	t.Run("InvalidEvent", func(t *testing.T) {
		dlq := new(MockDLQProducer)
		h := newHandler(t, new(MockListRefresher), newFakePusher(userID), dlq, 1)
		raw := []byte(`{"event_id":"` + uuid.NewString() + `","user_id":"` + userID.String() + `","type":"BOGUS"}`)
		dlq.On("PublishToDLQ", ctx, "k", raw, mock.MatchedBy(func(reason string) bool {
			return assert.ObjectsAreEqual(producers.DLQReasonInvalidEvent, reason[:len(producers.DLQReasonInvalidEvent)])
		})).Return(nil).Once()

		assert.NoError(t, h.HandleMessage(ctx, []byte("k"), raw))
		dlq.AssertExpectations(t)
	})

	t.Run("DLQFailureReturnsError", func(t *testing.T) {
		dlq := new(MockDLQProducer)
		h := newHandler(t, new(MockListRefresher), newFakePusher(userID), dlq, 1)
		dlq.On("PublishToDLQ", ctx, "k", mock.Anything, mock.Anything).Return(errors.New("kafka down")).Once()

		assert.Error(t, h.HandleMessage(ctx, []byte("k"), []byte("{")))
	})

	t.Run("NoDLQReturnsError", func(t *testing.T) {
		h := newHandler(t, new(MockListRefresher), newFakePusher(userID), nil, 1)

		assert.Error(t, h.HandleMessage(ctx, []byte("k"), []byte("{")))
	})

	t.Run("RefreshFailure", func(t *testing.T) {
		dlq := new(MockDLQProducer)
		refresher := new(MockListRefresher)
		pusher := newFakePusher(userID)
		h := newHandler(t, refresher, pusher, dlq, 1)

		refresher.On("RefreshList", mock.Anything, userID).Return(nil, errors.New("postgres down")).Once()
		dlq.On("PublishToDLQ", mock.Anything, userID.String(), mock.Anything, mock.MatchedBy(func(reason string) bool {
			return reason[:len(producers.DLQReasonHandlerFailed)] == producers.DLQReasonHandlerFailed
		})).Return(nil).Once()

		change := shared.NewSessionChange(uuid.New(), userID, shared.ChangeTypeUpdate, "")
		require.NoError(t, h.HandleMessage(ctx, []byte(userID.String()), encodeChange(t, change)))
		h.Shutdown()

		dlq.AssertExpectations(t)
		assert.Empty(t, pusher.messages(userID))
	})
}

package idle_watcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/chilli-trade-ledger/internal/config"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) IdleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSessionStore) Revoke(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type recordingFeed struct {
	mu           sync.Mutex
	disconnected []string
}

func (f *recordingFeed) DisconnectSession(authSessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, authSessionID)
	return 1
}

func (f *recordingFeed) sessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.disconnected...)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestWatcher(store SessionStore, m *metrics.Metrics, now time.Time) *Watcher {
	w := NewWatcher(&config.AuthConfig{IdleTimeout: 10 * time.Minute, IdleCheckInterval: 10 * time.Millisecond}, store, &recordingFeed{}, m, newTestLogger())
	w.now = func() time.Time { return now }
	return w
}

func TestWatcher_SignOutIdle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)

	t.Run("RevokesSessionsIdlePastTimeout", func(t *testing.T) {
		store := new(MockSessionStore)
		m := metrics.New("test")
		w := newTestWatcher(store, m, now)

		store.On("IdleSince", ctx, now.Add(-10*time.Minute)).Return([]string{"a", "b"}, nil)
		store.On("Revoke", ctx, "a").Return(nil)
		store.On("Revoke", ctx, "b").Return(nil)

		n, err := w.signOutIdle(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, n)
		store.AssertExpectations(t)
		assert.Equal(t, []string{"a", "b"}, w.feed.(*recordingFeed).sessions())

		rr := httptest.NewRecorder()
		m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, rr.Body.String(), "test_idle_sign_outs_total 2")
	})

	t.Run("NothingIdle", func(t *testing.T) {
		store := new(MockSessionStore)
		w := newTestWatcher(store, nil, now)
		store.On("IdleSince", ctx, mock.Anything).Return([]string{}, nil)

		n, err := w.signOutIdle(ctx)

		require.NoError(t, err)
		assert.Zero(t, n)
		store.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
		assert.Empty(t, w.feed.(*recordingFeed).sessions())
	})

	t.Run("RevokeFailureSkipsSession", func(t *testing.T) {
		store := new(MockSessionStore)
		w := newTestWatcher(store, nil, now)
		store.On("IdleSince", ctx, mock.Anything).Return([]string{"a", "b"}, nil)
		store.On("Revoke", ctx, "a").Return(errors.New("redis down"))
		store.On("Revoke", ctx, "b").Return(nil)

		n, err := w.signOutIdle(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"b"}, w.feed.(*recordingFeed).sessions(), "a stays connected until its revoke succeeds")
	})

	t.Run("ListFailure", func(t *testing.T) {
		store := new(MockSessionStore)
		w := newTestWatcher(store, nil, now)
		store.On("IdleSince", ctx, mock.Anything).Return(nil, errors.New("redis down"))

		_, err := w.signOutIdle(ctx)

		assert.Error(t, err)
	})
}

func TestWatcher_StartStopsOnCancel(t *testing.T) {
	store := new(MockSessionStore)
	w := newTestWatcher(store, nil, time.Now())

	var once sync.Once
	ticked := make(chan struct{})
	store.On("IdleSince", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { once.Do(func() { close(ticked) }) }).
		Return([]string{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never checked for idle sessions")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

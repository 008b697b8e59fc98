// Package idle_watcher signs out auth sessions that have seen no requests
// for longer than the configured idle timeout.
package idle_watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chilli-trade-ledger/internal/config"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
)

// SessionStore is the part of the auth session store the watcher needs
type SessionStore interface {
	IdleSince(ctx context.Context, cutoff time.Time) ([]string, error)
	Revoke(ctx context.Context, id string) error
}

// FeedDisconnector closes the change-feed connections of a revoked session
type FeedDisconnector interface {
	DisconnectSession(authSessionID string) int
}

// Watcher periodically revokes idle auth sessions and drops their change-feed
// connections. It never touches workspaces or saved sessions.
type Watcher struct {
	store         SessionStore
	feed          FeedDisconnector
	metrics       *metrics.Metrics
	logger        *slog.Logger
	idleTimeout   time.Duration
	checkInterval time.Duration
	now           func() time.Time
}

func NewWatcher(cfg *config.AuthConfig, store SessionStore, feed FeedDisconnector, m *metrics.Metrics, logger *slog.Logger) *Watcher {
	return &Watcher{
		store:         store,
		feed:          feed,
		metrics:       m,
		logger:        logger,
		idleTimeout:   cfg.IdleTimeout,
		checkInterval: cfg.IdleCheckInterval,
		now:           time.Now,
	}
}

// Start checks for idle sessions every interval until ctx is canceled
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("Starting idle session watcher",
		"idle_timeout", w.idleTimeout.String(),
		"check_interval", w.checkInterval.String(),
	)
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Idle session watcher stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := w.signOutIdle(ctx); err != nil {
				w.logger.Error("Error during idle session check", "error", err)
			}
		}
	}
}

// signOutIdle revokes every session idle past the timeout and returns how
// many were revoked. A failed revoke is logged and retried on the next tick.
func (w *Watcher) signOutIdle(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.idleTimeout)
	ids, err := w.store.IdleSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	revoked := 0
	for _, id := range ids {
		if err := w.store.Revoke(ctx, id); err != nil {
			w.logger.Error("Failed to revoke idle auth session", "auth_session_id", id, "error", err)
			continue
		}
		w.feed.DisconnectSession(id)
		revoked++
	}

	w.metrics.IdleSignOuts(revoked)
	w.logger.Info("Signed out idle sessions", "count", revoked, "idle_before", cutoff.UTC().Format(time.RFC3339))
	return revoked, nil
}

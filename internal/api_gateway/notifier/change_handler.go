package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/chilli-trade-ledger/internal/platform/messaging/producers"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

const refreshTimeout = 10 * time.Second

// Results recorded in the change event metric
const (
	resultPushed     = "pushed"
	resultNoClients  = "no_clients"
	resultCoalesced  = "coalesced"
	resultDeadLetter = "dead_lettered"
	resultFailed     = "failed"
)

// ListRefresher reloads a user's session list from the row store
type ListRefresher interface {
	RefreshList(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, error)
}

// Pusher delivers a payload to a user's open connections
type Pusher interface {
	Push(userID uuid.UUID, payload []byte) int
	Connected(userID uuid.UUID) bool
}

// Renderer builds the message pushed to clients for one change
type Renderer func(change *shared.SessionChange, sessions []*session.TradeSession) interface{}

// ChangeEventHandler consumes session change events. Decoding happens on the
// consumer goroutine; the refetch and push run on a bounded worker pool.
type ChangeEventHandler struct {
	refresher ListRefresher
	pusher    Pusher
	render    Renderer
	dlq       producers.DeadLetterPublisher
	pool      *ants.Pool
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]*refreshState
	wg       sync.WaitGroup
}

type refreshState struct {
	rerun  bool
	latest *shared.SessionChange
	key    []byte
	value  []byte
}

// NewChangeEventHandler creates a handler backed by a pool of poolSize workers.
// dlq may be nil when the dead letter topic is disabled.
func NewChangeEventHandler(
	logger *slog.Logger,
	refresher ListRefresher,
	pusher Pusher,
	render Renderer,
	dlq producers.DeadLetterPublisher,
	poolSize int,
	m *metrics.Metrics,
) (*ChangeEventHandler, error) {
	// Submit blocks while every worker is busy, which holds back the consumer.
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &ChangeEventHandler{
		refresher: refresher,
		pusher:    pusher,
		render:    render,
		dlq:       dlq,
		pool:      pool,
		metrics:   m,
		logger:    logger,
		inflight:  make(map[uuid.UUID]*refreshState),
	}, nil
}

// HandleMessage is a consumers.MessageHandler. It returns nil once the event
// is either queued or dead-lettered, so the offset can be committed.
func (h *ChangeEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var change shared.SessionChange
	if err := json.Unmarshal(value, &change); err != nil {
		h.logger.Error("Failed to unmarshal session change from Kafka message",
			"error", err,
			"message_key", string(key),
		)
		return h.deadLetter(ctx, key, value, producers.DLQReasonUnmarshal, err)
	}

	logger := h.logger
	if change.CorrelationID != "" {
		logger = h.logger.With("correlation_id", change.CorrelationID)
	}

	if err := change.Validate(); err != nil {
		logger.Error("Received invalid session change", "event_id", change.EventID.String(), "error", err)
		return h.deadLetter(ctx, key, value, producers.DLQReasonInvalidEvent, err)
	}

	if !h.pusher.Connected(change.UserID) {
		h.metrics.ChangeEventHandled(resultNoClients)
		return nil
	}

	h.mu.Lock()
	if st, ok := h.inflight[change.UserID]; ok {
		st.rerun = true
		st.latest = &change
		st.key, st.value = key, value
		h.mu.Unlock()
		h.metrics.ChangeEventHandled(resultCoalesced)
		logger.Debug("Refresh already running for user, folding change into it", "user_id", change.UserID.String())
		return nil
	}
	h.inflight[change.UserID] = &refreshState{}
	h.mu.Unlock()

	h.wg.Add(1)
	err := h.pool.Submit(func() {
		defer h.wg.Done()
		h.runRefresh(ctx, logger, &change, key, value)
	})
	if err != nil {
		h.wg.Done()
		h.mu.Lock()
		delete(h.inflight, change.UserID)
		h.mu.Unlock()
		logger.Error("Failed to submit session change to worker pool", "event_id", change.EventID.String(), "error", err)
		return err
	}
	return nil
}

// runRefresh repeats the refresh while further changes for the same user
// arrived during the previous one.
func (h *ChangeEventHandler) runRefresh(ctx context.Context, logger *slog.Logger, change *shared.SessionChange, key, value []byte) {
	for {
		h.refreshAndPush(ctx, logger, change, key, value)

		h.mu.Lock()
		st := h.inflight[change.UserID]
		if st == nil || !st.rerun {
			delete(h.inflight, change.UserID)
			h.mu.Unlock()
			return
		}
		change, key, value = st.latest, st.key, st.value
		*st = refreshState{}
		h.mu.Unlock()
	}
}

func (h *ChangeEventHandler) refreshAndPush(ctx context.Context, logger *slog.Logger, change *shared.SessionChange, key, value []byte) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	sessions, err := h.refresher.RefreshList(ctx, change.UserID)
	if err != nil {
		logger.Error("Failed to refresh session list",
			"user_id", change.UserID.String(),
			"event_id", change.EventID.String(),
			"error", err,
		)
		_ = h.deadLetter(ctx, key, value, producers.DLQReasonHandlerFailed, err)
		return
	}

	payload, err := json.Marshal(h.render(change, sessions))
	if err != nil {
		logger.Error("Failed to encode session list push", "user_id", change.UserID.String(), "error", err)
		h.metrics.ChangeEventHandled(resultFailed)
		return
	}

	delivered := h.pusher.Push(change.UserID, payload)
	h.metrics.ChangeEventHandled(resultPushed)
	logger.Info("Pushed session list",
		"user_id", change.UserID.String(),
		"change_type", string(change.Type),
		"session_id", change.SessionID.String(),
		"connections", delivered,
	)
}

// deadLetter returns nil when the message is safely parked on the DLQ
func (h *ChangeEventHandler) deadLetter(ctx context.Context, key, value []byte, reason string, cause error) error {
	if h.dlq == nil {
		h.metrics.ChangeEventHandled(resultFailed)
		return fmt.Errorf("%s: %w", reason, cause)
	}
	if err := h.dlq.PublishToDLQ(ctx, string(key), value, fmt.Sprintf("%s: %v", reason, cause)); err != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key),
		)
		h.metrics.ChangeEventHandled(resultFailed)
		return fmt.Errorf("%s: %w", reason, cause)
	}
	h.metrics.ChangeEventHandled(resultDeadLetter)
	h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
	return nil
}

// Shutdown waits for queued refreshes and releases the pool
func (h *ChangeEventHandler) Shutdown() {
	h.logger.Info("Shutting down change worker pool", "running_workers", h.pool.Running())
	h.wg.Wait()
	h.pool.Release()
}

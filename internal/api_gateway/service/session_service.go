package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chilli-trade-ledger/internal/domain/outbox"
	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionServiceImpl implements the SessionService interface
type SessionServiceImpl struct {
	db        TxExecutor
	repo      session.Repository
	outbox    outbox.Repository
	workspace WorkspaceRepository
	cache     SessionListCache
	lock      SaveLocker
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewSessionService creates a new session service. m may be nil.
func NewSessionService(
	logger *slog.Logger,
	db TxExecutor,
	repo session.Repository,
	outboxRepo outbox.Repository,
	workspace WorkspaceRepository,
	cache SessionListCache,
	lock SaveLocker,
	m *metrics.Metrics,
) SessionService {
	return &SessionServiceImpl{
		db:        db,
		repo:      repo,
		outbox:    outboxRepo,
		workspace: workspace,
		cache:     cache,
		lock:      lock,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SessionServiceImpl) List(ctx context.Context, userID uuid.UUID, query string) ([]*session.TradeSession, error) {
	cached, found, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("Session list cache unavailable, reading row store", "user_id", userID.String(), "error", err)
	}
	if found {
		return session.Search(cached, query), nil
	}

	sessions, err := s.RefreshList(ctx, userID)
	if err != nil {
		return nil, err
	}
	return session.Search(sessions, query), nil
}

func (s *SessionServiceImpl) RefreshList(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, error) {
	sessions, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, userID, sessions); err != nil {
		s.logger.Warn("Failed to cache session list", "user_id", userID.String(), "error", err)
	}
	return sessions, nil
}

func (s *SessionServiceImpl) Save(ctx context.Context, userID uuid.UUID, correlationID string) (*session.TradeSession, error) {
	release, err := s.lock.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release save lock", "user_id", userID.String(), "error", err)
		}
	}()

	ws, err := s.workspace.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	ts, err := session.ToPersisted(ws, userID, s.now())
	if err != nil {
		return nil, err
	}

	changeType := shared.ChangeTypeUpdate
	if ts.IsNew() {
		changeType = shared.ChangeTypeInsert
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)
		if changeType == shared.ChangeTypeInsert {
			if err := repo.Create(ctx, ts); err != nil {
				return err
			}
		} else if err := repo.Update(ctx, ts); err != nil {
			return err
		}
		return s.recordChange(ctx, tx, ts.ID, userID, changeType, correlationID)
	})
	if err != nil {
		s.logger.Error("Failed to save trade session",
			"user_id", userID.String(),
			"change_type", string(changeType),
			"error", err,
		)
		return nil, err
	}

	s.metrics.SessionWritten(string(changeType))
	s.logger.Info("Trade session saved",
		"user_id", userID.String(),
		"session_id", ts.ID.String(),
		"change_type", string(changeType),
	)

	if err := s.workspace.Put(ctx, userID, session.Reset()); err != nil {
		s.logger.Error("Failed to reset workspace after save", "user_id", userID.String(), "error", err)
	}
	s.invalidate(ctx, userID)

	return ts, nil
}

func (s *SessionServiceImpl) Load(ctx context.Context, userID, sessionID uuid.UUID) (session.Workspace, error) {
	ts, err := s.repo.GetByID(ctx, userID, sessionID)
	if err != nil {
		return session.Workspace{}, err
	}

	ws := session.FromPersisted(ts)
	if err := s.workspace.Put(ctx, userID, ws); err != nil {
		return session.Workspace{}, err
	}

	s.logger.Info("Trade session loaded", "user_id", userID.String(), "session_id", sessionID.String())
	return ws, nil
}

func (s *SessionServiceImpl) Delete(ctx context.Context, userID, sessionID uuid.UUID, correlationID string) error {
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.WithTx(tx).Delete(ctx, userID, sessionID); err != nil {
			return err
		}
		return s.recordChange(ctx, tx, sessionID, userID, shared.ChangeTypeDelete, correlationID)
	})
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound{}) {
			s.logger.Error("Failed to delete trade session", "user_id", userID.String(), "session_id", sessionID.String(), "error", err)
		}
		return err
	}

	s.metrics.SessionWritten(string(shared.ChangeTypeDelete))
	s.logger.Info("Trade session deleted", "user_id", userID.String(), "session_id", sessionID.String())

	// The next save of the current ledger must insert instead of updating a gone row.
	_, err = s.workspace.Update(ctx, userID, func(ws session.Workspace) (session.Workspace, error) {
		if ws.ActiveSessionID != nil && *ws.ActiveSessionID == sessionID {
			ws.ActiveSessionID = nil
		}
		return ws, nil
	})
	if err != nil {
		s.logger.Warn("Failed to detach deleted session from workspace", "user_id", userID.String(), "error", err)
	}
	s.invalidate(ctx, userID)

	return nil
}

func (s *SessionServiceImpl) recordChange(ctx context.Context, tx pgx.Tx, sessionID, userID uuid.UUID, changeType shared.ChangeType, correlationID string) error {
	msg, err := outbox.NewMessage(shared.NewSessionChange(sessionID, userID, changeType, correlationID))
	if err != nil {
		return err
	}
	return s.outbox.WithTx(tx).Create(ctx, msg)
}

func (s *SessionServiceImpl) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("Failed to invalidate session list cache", "user_id", userID.String(), "error", err)
	}
}

package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/trade"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrRecordNotFound indicates a payment update for a record the ledger does not hold
type ErrRecordNotFound struct {
	Side     trade.Side
	RecordID string
}

func (e ErrRecordNotFound) Error() string {
	return "no " + string(e.Side) + " record with id " + e.RecordID
}

// WorkspaceServiceImpl implements the WorkspaceService interface
type WorkspaceServiceImpl struct {
	store  WorkspaceRepository
	logger *slog.Logger
}

// NewWorkspaceService creates a new workspace service
func NewWorkspaceService(logger *slog.Logger, store WorkspaceRepository) WorkspaceService {
	return &WorkspaceServiceImpl{
		store:  store,
		logger: logger,
	}
}

func (s *WorkspaceServiceImpl) Get(ctx context.Context, userID uuid.UUID) (session.Workspace, error) {
	return s.store.Get(ctx, userID)
}

func (s *WorkspaceServiceImpl) Reset(ctx context.Context, userID uuid.UUID) (session.Workspace, error) {
	ws := session.Reset()
	if err := s.store.Put(ctx, userID, ws); err != nil {
		return session.Workspace{}, err
	}
	return ws, nil
}

func (s *WorkspaceServiceImpl) Rename(ctx context.Context, userID uuid.UUID, name string) (session.Workspace, error) {
	return s.store.Update(ctx, userID, func(ws session.Workspace) (session.Workspace, error) {
		ws.SessionName = strings.TrimSpace(name)
		return ws, nil
	})
}

func (s *WorkspaceServiceImpl) EditDraft(ctx context.Context, userID uuid.UUID, side trade.Side, edit trade.DraftEdit) (session.Workspace, error) {
	return s.updateLedger(ctx, userID, func(l trade.Ledger) (trade.Ledger, error) {
		return trade.EditDraft(l, side, edit), nil
	})
}

func (s *WorkspaceServiceImpl) AddDraftEntry(ctx context.Context, userID uuid.UUID, side trade.Side, in trade.EntryInput) (session.Workspace, error) {
	return s.updateLedger(ctx, userID, func(l trade.Ledger) (trade.Ledger, error) {
		next, _, err := trade.AddDraftEntry(l, side, in)
		return next, err
	})
}

func (s *WorkspaceServiceImpl) RemoveDraftEntry(ctx context.Context, userID uuid.UUID, side trade.Side, entryID string) (session.Workspace, error) {
	return s.updateLedger(ctx, userID, func(l trade.Ledger) (trade.Ledger, error) {
		return trade.RemoveDraftEntry(l, side, entryID), nil
	})
}

func (s *WorkspaceServiceImpl) FinalizeDraft(ctx context.Context, userID uuid.UUID, side trade.Side) (session.Workspace, error) {
	return s.updateLedger(ctx, userID, func(l trade.Ledger) (trade.Ledger, error) {
		next, rec, err := trade.SaveDraft(l, side)
		if err != nil {
			return l, err
		}
		s.logger.Debug("Draft finalized", "user_id", userID.String(), "side", string(side), "record_id", rec.ID)
		return next, nil
	})
}

func (s *WorkspaceServiceImpl) RemoveRecord(ctx context.Context, userID uuid.UUID, side trade.Side, recordID string) (session.Workspace, error) {
	return s.updateLedger(ctx, userID, func(l trade.Ledger) (trade.Ledger, error) {
		return trade.RemoveRecord(l, side, recordID), nil
	})
}

func (s *WorkspaceServiceImpl) UpdatePayment(ctx context.Context, userID uuid.UUID, side trade.Side, recordID string, amount decimal.Decimal, mode trade.PaymentMode) (session.Workspace, error) {
	return s.updateLedger(ctx, userID, func(l trade.Ledger) (trade.Ledger, error) {
		next, ok := trade.ApplyPayment(l, side, recordID, amount, mode)
		if !ok {
			return l, ErrRecordNotFound{Side: side, RecordID: recordID}
		}
		return next, nil
	})
}

// updateLedger runs fn against the stored ledger; a failing fn stores nothing.
func (s *WorkspaceServiceImpl) updateLedger(ctx context.Context, userID uuid.UUID, fn func(trade.Ledger) (trade.Ledger, error)) (session.Workspace, error) {
	return s.store.Update(ctx, userID, func(ws session.Workspace) (session.Workspace, error) {
		next, err := fn(ws.Ledger)
		if err != nil {
			return ws, err
		}
		ws.Ledger = next
		return ws, nil
	})
}

package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository is the row store for trade sessions. Every call is scoped to
// the owning user.
type Repository interface {
	// ListByUser returns the user's sessions, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*TradeSession, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*TradeSession, error)
	// Create inserts the row and sets the store-assigned ID and CreatedAt.
	Create(ctx context.Context, s *TradeSession) error
	// Update overwrites the row with s.ID. Returns ErrSessionNotFound when
	// the row is gone.
	Update(ctx context.Context, s *TradeSession) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	WithTx(tx pgx.Tx) Repository
}

// ErrSessionNotFound is returned when no row matches the id for that user.
type ErrSessionNotFound struct {
	SessionID uuid.UUID
}

func (e ErrSessionNotFound) Error() string {
	return "trade session not found: " + e.SessionID.String()
}

func (e ErrSessionNotFound) Is(target error) bool {
	_, ok := target.(ErrSessionNotFound)
	return ok
}

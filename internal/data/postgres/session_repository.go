package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionRepository implements the session.Repository interface for PostgreSQL.
// Purchases and sales are stored as JSONB documents; the total columns are
// written for reporting but recomputed from the documents on every read.
type SessionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewSessionRepository creates a new PostgreSQL trade session repository
func NewSessionRepository(logger *slog.Logger, db *persistence.PostgresDB) session.Repository {
	return &SessionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to the transaction
func (r *SessionRepository) WithTx(tx pgx.Tx) session.Repository {
	return &SessionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.TradeSession, error) {
	var (
		s                session.TradeSession
		purchases, sales []byte
	)
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.UserID, &s.SessionName, &purchases, &sales); err != nil {
		return nil, err
	}
	if err := unmarshalRecords(purchases, &s.Purchases); err != nil {
		return nil, fmt.Errorf("failed to decode purchases of session %s: %w", s.ID, err)
	}
	if err := unmarshalRecords(sales, &s.Sales); err != nil {
		return nil, fmt.Errorf("failed to decode sales of session %s: %w", s.ID, err)
	}
	s.RecomputeTotals()
	return &s, nil
}

func unmarshalRecords(raw []byte, dst *[]session.PersistedRecord) error {
	if len(raw) == 0 {
		*dst = []session.PersistedRecord{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	if *dst == nil {
		*dst = []session.PersistedRecord{}
	}
	return nil
}

func marshalRecords(records []session.PersistedRecord) ([]byte, error) {
	if records == nil {
		records = []session.PersistedRecord{}
	}
	return json.Marshal(records)
}

// ListByUser returns the user's sessions ordered newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, error) {
	query := `
		SELECT id, created_at, user_id, session_name, purchases, sales
		FROM trade_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list trade sessions", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to list trade sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*session.TradeSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			r.logger.Error("Failed to scan trade session", "error", err)
			return nil, fmt.Errorf("failed to scan trade session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over trade sessions", "error", err)
		return nil, fmt.Errorf("error iterating over trade sessions: %w", err)
	}

	return sessions, nil
}

// GetByID returns ErrSessionNotFound when the row is missing or owned by someone else
func (r *SessionRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*session.TradeSession, error) {
	query := `
		SELECT id, created_at, user_id, session_name, purchases, sales
		FROM trade_sessions
		WHERE id = $1 AND user_id = $2
	`

	s, err := scanSession(r.querier.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound{SessionID: id}
		}
		r.logger.Error("Failed to get trade session", "session_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get trade session: %w", err)
	}

	return s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *session.TradeSession) error {
	purchases, err := marshalRecords(s.Purchases)
	if err != nil {
		return fmt.Errorf("failed to encode purchases: %w", err)
	}
	sales, err := marshalRecords(s.Sales)
	if err != nil {
		return fmt.Errorf("failed to encode sales: %w", err)
	}

	query := `
		INSERT INTO trade_sessions (user_id, session_name, purchases, sales, total_purchase_amount, total_sale_amount, net_profit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err = r.querier.QueryRow(ctx, query,
		s.UserID,
		s.SessionName,
		purchases,
		sales,
		s.TotalPurchaseAmount,
		s.TotalSaleAmount,
		s.NetProfit,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create trade session",
			"user_id", s.UserID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create trade session: %w", err)
	}

	return nil
}

func (r *SessionRepository) Update(ctx context.Context, s *session.TradeSession) error {
	purchases, err := marshalRecords(s.Purchases)
	if err != nil {
		return fmt.Errorf("failed to encode purchases: %w", err)
	}
	sales, err := marshalRecords(s.Sales)
	if err != nil {
		return fmt.Errorf("failed to encode sales: %w", err)
	}

	query := `
		UPDATE trade_sessions
		SET session_name = $1, purchases = $2, sales = $3,
			total_purchase_amount = $4, total_sale_amount = $5, net_profit = $6
		WHERE id = $7 AND user_id = $8
		RETURNING created_at
	`

	err = r.querier.QueryRow(ctx, query,
		s.SessionName,
		purchases,
		sales,
		s.TotalPurchaseAmount,
		s.TotalSaleAmount,
		s.NetProfit,
		s.ID,
		s.UserID,
	).Scan(&s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.ErrSessionNotFound{SessionID: s.ID}
		}
		r.logger.Error("Failed to update trade session",
			"session_id", s.ID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to update trade session: %w", err)
	}

	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := `
		DELETE FROM trade_sessions
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.querier.Exec(ctx, query, id, userID)
	if err != nil {
		r.logger.Error("Failed to delete trade session",
			"session_id", id.String(),
			"error", err,
		)
		return fmt.Errorf("failed to delete trade session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return session.ErrSessionNotFound{SessionID: id}
	}

	return nil
}

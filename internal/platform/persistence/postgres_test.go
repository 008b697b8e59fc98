package persistence

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresDB(t *testing.T) (*PostgresDB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return &PostgresDB{txStarter: mock, logger: logger}, mock
}

func TestPostgresDB_ExecuteTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		db, mock := newMockPostgresDB(t)
		mock.ExpectBeginTx(sessionTxOptions)
		mock.ExpectExec("DELETE FROM trade_sessions").
			WithArgs(pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		err := db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "DELETE FROM trade_sessions WHERE id = $1", 1)
			return err
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackKeepsCallerError", func(t *testing.T) {
		db, mock := newMockPostgresDB(t)
		sentinel := errors.New("session not found")
		mock.ExpectBeginTx(sessionTxOptions)
		mock.ExpectRollback()

		err := db.ExecuteTx(ctx, func(tx pgx.Tx) error { return sentinel })

		assert.Same(t, sentinel, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginFailure", func(t *testing.T) {
		db, mock := newMockPostgresDB(t)
		mock.ExpectBeginTx(sessionTxOptions).WillReturnError(errors.New("too many connections"))

		called := false
		err := db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			called = true
			return nil
		})

		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.False(t, called)
	})

	t.Run("CommitFailure", func(t *testing.T) {
		db, mock := newMockPostgresDB(t)
		mock.ExpectBeginTx(sessionTxOptions)
		mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

		err := db.ExecuteTx(ctx, func(tx pgx.Tx) error { return nil })

		assert.ErrorContains(t, err, "failed to commit transaction")
	})

	t.Run("PanicRollsBack", func(t *testing.T) {
		db, mock := newMockPostgresDB(t)
		mock.ExpectBeginTx(sessionTxOptions)
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = db.ExecuteTx(ctx, func(tx pgx.Tx) error { panic("boom") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

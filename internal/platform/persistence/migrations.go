package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const fileSourcePrefix = "file://"

// migrationSource turns a directory into a file source URL. Paths that
// already carry the scheme are used as given.
func migrationSource(path string) string {
	if strings.HasPrefix(path, fileSourcePrefix) {
		return path
	}
	return fileSourcePrefix + path
}

// RunMigrations brings the trade_sessions and session_outbox schema up to the
// latest version found under migrationsPath.
func RunMigrations(logger *slog.Logger, databaseURL string, migrationsPath string) error {
	if migrationsPath == "" {
		return errors.New("migrations path cannot be empty")
	}
	if databaseURL == "" {
		return errors.New("database URL cannot be empty")
	}

	m, err := migrate.New(migrationSource(migrationsPath), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrator", "source_error", sourceErr, "db_error", dbErr)
		}
	}()

	upErr := m.Up()
	switch {
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.Info("Schema is up to date")
	case upErr != nil:
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}

	logger.Info("Migrations applied", "version", version, "source", migrationsPath)
	return nil
}

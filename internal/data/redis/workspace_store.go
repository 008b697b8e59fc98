package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chilli-trade-ledger/internal/domain/session"
)

const (
	workspaceKeyPrefix = "workspace:"

	// maxUpdateRetries bounds optimistic retries when two requests for the
	// same user race on the workspace key.
	maxUpdateRetries = 5
)

var ErrWorkspaceConflict = errors.New("workspace changed concurrently, retry the request")

// WorkspaceStore keeps each signed-in user's workspace as one JSON value.
type WorkspaceStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewWorkspaceStore(logger *slog.Logger, client *redis.Client) *WorkspaceStore {
	return &WorkspaceStore{
		client: client,
		logger: logger,
	}
}

func workspaceKey(userID uuid.UUID) string {
	return workspaceKeyPrefix + userID.String()
}

// Get returns the stored workspace or a fresh one when the user has none.
func (s *WorkspaceStore) Get(ctx context.Context, userID uuid.UUID) (session.Workspace, error) {
	return s.get(ctx, s.client, userID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *WorkspaceStore) get(ctx context.Context, c getter, userID uuid.UUID) (session.Workspace, error) {
	raw, err := c.Get(ctx, workspaceKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.NewWorkspace(), nil
		}
		s.logger.Error("Failed to load workspace", "user_id", userID.String(), "error", err)
		return session.Workspace{}, fmt.Errorf("failed to load workspace: %w", err)
	}

	var ws session.Workspace
	if err := json.Unmarshal(raw, &ws); err != nil {
		return session.Workspace{}, fmt.Errorf("failed to decode workspace: %w", err)
	}
	return ws, nil
}

// Put overwrites the user's workspace.
func (s *WorkspaceStore) Put(ctx context.Context, userID uuid.UUID, ws session.Workspace) error {
	raw, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("failed to encode workspace: %w", err)
	}
	if err := s.client.Set(ctx, workspaceKey(userID), raw, 0).Err(); err != nil {
		s.logger.Error("Failed to store workspace", "user_id", userID.String(), "error", err)
		return fmt.Errorf("failed to store workspace: %w", err)
	}
	return nil
}

// Update applies fn to the current workspace and stores the result. The
// read and write run under WATCH so a concurrent writer forces a retry
// instead of losing an edit. An error from fn aborts without writing.
func (s *WorkspaceStore) Update(ctx context.Context, userID uuid.UUID, fn func(session.Workspace) (session.Workspace, error)) (session.Workspace, error) {
	key := workspaceKey(userID)
	var result session.Workspace

	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, userID)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode workspace: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return session.Workspace{}, err
	}

	s.logger.Warn("Workspace update gave up after retries", "user_id", userID.String())
	return session.Workspace{}, ErrWorkspaceConflict
}

// Delete drops the user's workspace so the next Get starts empty.
func (s *WorkspaceStore) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, workspaceKey(userID)).Err(); err != nil {
		s.logger.Error("Failed to delete workspace", "user_id", userID.String(), "error", err)
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chilli-trade-ledger/internal/domain/session"
)

const sessionListKeyPrefix = "sessions:list:"

// SessionListCache holds each user's most recent session list.
type SessionListCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewSessionListCache(logger *slog.Logger, client *redis.Client, ttl time.Duration) *SessionListCache {
	return &SessionListCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func sessionListKey(userID uuid.UUID) string {
	return sessionListKeyPrefix + userID.String()
}

// Get reports a miss with found=false and no error.
func (c *SessionListCache) Get(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, bool, error) {
	raw, err := c.client.Get(ctx, sessionListKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.logger.Debug("session list cache miss", "user_id", userID.String())
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached session list: %w", err)
	}

	var sessions []*session.TradeSession
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached session list: %w", err)
	}
	return sessions, true, nil
}

func (c *SessionListCache) Set(ctx context.Context, userID uuid.UUID, sessions []*session.TradeSession) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode session list: %w", err)
	}
	if err := c.client.Set(ctx, sessionListKey(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache session list: %w", err)
	}
	return nil
}

func (c *SessionListCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, sessionListKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session list: %w", err)
	}
	return nil
}

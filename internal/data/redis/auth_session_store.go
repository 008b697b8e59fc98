package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	authSessionKeyPrefix = "auth:session:"
	// activityKey is a sorted set of auth session ids scored by last activity
	// in unix milliseconds.
	activityKey = "auth:activity"
)

var ErrAuthSessionNotFound = errors.New("auth session not found or revoked")

// AuthSession is the server-side half of a signed-in token.
type AuthSession struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthSessionStore tracks live auth sessions and when each was last used.
type AuthSessionStore struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthSessionStore(logger *slog.Logger, client *redis.Client) *AuthSessionStore {
	return &AuthSessionStore{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func authSessionKey(id string) string {
	return authSessionKeyPrefix + id
}

func activityScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Create opens a session for userID that expires after ttl.
func (s *AuthSessionStore) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*AuthSession, error) {
	now := s.now().UTC()
	as := &AuthSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	raw, err := json.Marshal(as)
	if err != nil {
		return nil, fmt.Errorf("failed to encode auth session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, authSessionKey(as.ID), raw, ttl)
		pipe.ZAdd(ctx, activityKey, redis.Z{Score: activityScore(now), Member: as.ID})
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create auth session", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to create auth session: %w", err)
	}

	return as, nil
}

// Get returns ErrAuthSessionNotFound when the session expired or was revoked.
func (s *AuthSessionStore) Get(ctx context.Context, id string) (*AuthSession, error) {
	raw, err := s.client.Get(ctx, authSessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAuthSessionNotFound
		}
		return nil, fmt.Errorf("failed to get auth session: %w", err)
	}

	var as AuthSession
	if err := json.Unmarshal(raw, &as); err != nil {
		return nil, fmt.Errorf("failed to decode auth session: %w", err)
	}
	return &as, nil
}

// Touch records activity on a live session.
func (s *AuthSessionStore) Touch(ctx context.Context, id string) error {
	err := s.client.ZAddXX(ctx, activityKey, redis.Z{Score: activityScore(s.now()), Member: id}).Err()
	if err != nil {
		return fmt.Errorf("failed to touch auth session: %w", err)
	}
	return nil
}

// LastActivity returns when the session was last touched.
func (s *AuthSessionStore) LastActivity(ctx context.Context, id string) (time.Time, error) {
	score, err := s.client.ZScore(ctx, activityKey, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, ErrAuthSessionNotFound
		}
		return time.Time{}, fmt.Errorf("failed to read auth session activity: %w", err)
	}
	return time.UnixMilli(int64(score)), nil
}

// IdleSince lists the sessions whose last activity is at or before cutoff.
func (s *AuthSessionStore) IdleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, activityKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list idle auth sessions: %w", err)
	}
	return ids, nil
}

// Revoke ends one session. Revoking an unknown id is not an error.
func (s *AuthSessionStore) Revoke(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, authSessionKey(id))
		pipe.ZRem(ctx, activityKey, id)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to revoke auth session", "auth_session_id", id, "error", err)
		return fmt.Errorf("failed to revoke auth session: %w", err)
	}
	return nil
}

// RevokeAll ends every tracked session and returns how many were dropped.
func (s *AuthSessionStore) RevokeAll(ctx context.Context) (int, error) {
	ids, err := s.client.ZRange(ctx, activityKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list auth sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, authSessionKey(id))
	}
	keys = append(keys, activityKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("failed to revoke auth sessions: %w", err)
	}
	return len(ids), nil
}

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chilli-trade-ledger/internal/domain/session"
)

const saveLockKeyPrefix = "lock:save:"

// releaseScript deletes the lock only if it still holds our token, so a
// save that outlived its TTL cannot drop a lock taken by the next save.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SaveLock serializes saves per user so double submits cannot insert twice.
type SaveLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSaveLock(client *redis.Client, ttl time.Duration) *SaveLock {
	return &SaveLock{
		client: client,
		ttl:    ttl,
	}
}

// Acquire returns session.ErrSaveInProgress while another save holds the lock.
func (l *SaveLock) Acquire(ctx context.Context, userID uuid.UUID) (func(context.Context) error, error) {
	key := saveLockKeyPrefix + userID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire save lock: %w", err)
	}
	if !ok {
		return nil, session.ErrSaveInProgress
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release save lock: %w", err)
		}
		return nil
	}
	return release, nil
}

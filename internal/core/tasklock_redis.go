package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a Redis slot survives a crashed holder.
const DefaultLockTTL = 15 * time.Minute

// Redis key prefix for event locks
const lockKeyPrefix = "guestlist:lock:"

// releaseScript deletes the key only if it still holds our token, so an
// expired and re-acquired slot is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTaskLock is a TaskLock shared by every process using the same Redis.
type RedisTaskLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisTaskLock creates a RedisTaskLock. A zero ttl uses DefaultLockTTL.
func NewRedisTaskLock(client redis.UniversalClient, ttl time.Duration) *RedisTaskLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisTaskLock{client: client, ttl: ttl}
}

// TryAcquire sets the key with NX and the configured TTL.
func (l *RedisTaskLock) TryAcquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := lockKeyPrefix + key

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrEventBusy
	}

	return func() {
		// The caller's context may already be done; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err(); err != nil {
			slog.Warn("release event lock failed", "key", key, "error", err)
		}
	}, nil
}

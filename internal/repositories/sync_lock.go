package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/retailpulse/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	syncLockKeyPrefix  = "retailpulse:sync-lock:"
	DefaultSyncLockTTL = 30 * time.Minute
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSyncLock is a best-effort distributed lock so replicas sharing one
// mirror don't sync the same entity kind at once. The TTL bounds how long a
// crashed holder can block others.
type RedisSyncLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSyncLock(client *redis.Client, ttl time.Duration) *RedisSyncLock {
	if ttl <= 0 {
		ttl = DefaultSyncLockTTL
	}
	return &RedisSyncLock{client: client, ttl: ttl}
}

func (l *RedisSyncLock) TryAcquire(ctx context.Context, entity models.EntityKind) (func(), bool, error) {
	key := syncLockKey(entity)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

func syncLockKey(entity models.EntityKind) string {
	return syncLockKeyPrefix + string(entity)
}

package cache

import (
	"context"
	"time"
)

// Store holds computed results for a fixed time from the write. Reads never
// extend an entry's lifetime.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prudhvinik1/retailpulse/internal/clock"
)

type memItem struct {
	v       []byte
	expires time.Time
	noexp   bool
}

// MemoryStore is a process-local Store. Expired entries are removed when
// they are next read; there is no background sweep and no size bound.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	clock clock.Clock
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &MemoryStore{items: map[string]memItem{}, clock: c}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.noexp && !s.clock.Now().Before(it.expires) {
		s.mu.Lock()
		// a concurrent Set may have replaced the entry
		if cur, ok := s.items[key]; ok && cur.expires.Equal(it.expires) && !cur.noexp {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return clone(it.v), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx
	it := memItem{v: clone(value)}
	if ttl <= 0 {
		it.noexp = true
	} else {
		it.expires = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = it
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Len counts stored entries, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

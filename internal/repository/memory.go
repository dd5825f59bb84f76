package repository

import (
	"context"
	"sync"
	"time"
)

// MemorySnapshotCache is the in-process fallback used when Redis is
// unavailable. Entries expire lazily on read.
type MemorySnapshotCache struct {
	entries sync.Map
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{}
}

func (r *MemorySnapshotCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok := r.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		r.entries.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (r *MemorySnapshotCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.entries.Store(key, &memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (r *MemorySnapshotCache) Invalidate(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		r.entries.Delete(key)
	}
	return nil
}

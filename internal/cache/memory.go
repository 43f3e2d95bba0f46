package cache

import (
	"context"
	"sync"
	"time"

	"seller-market/internal/interfaces"
	"seller-market/internal/types"
)

var _ interfaces.CacheStore = (*MemoryStore)(nil)

type memKey struct {
	cat types.CacheCategory
	key string
}

type memEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in process memory. Entries are replaced as a
// whole so readers never observe a partial write.
type MemoryStore struct {
	now     func() time.Time
	entries sync.Map // memKey -> *memEntry
	writers keyedMutex
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{now: o.now}
}

func (m *MemoryStore) Put(_ context.Context, cat types.CacheCategory, key string, payload []byte, ttl time.Duration) error {
	unlock := m.writers.lock(lockID(cat, key))
	defer unlock()
	m.entries.Store(memKey{cat, key}, &memEntry{
		payload:   cloneBytes(payload),
		expiresAt: m.now().Add(ttl),
	})
	return nil
}

func (m *MemoryStore) Get(_ context.Context, cat types.CacheCategory, key string) ([]byte, bool) {
	v, ok := m.entries.Load(memKey{cat, key})
	if !ok {
		return nil, false
	}
	e := v.(*memEntry)
	if !m.now().Before(e.expiresAt) {
		return nil, false
	}
	return cloneBytes(e.payload), true
}

func (m *MemoryStore) Invalidate(_ context.Context, cat types.CacheCategory, key string) error {
	unlock := m.writers.lock(lockID(cat, key))
	defer unlock()
	m.entries.Delete(memKey{cat, key})
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, cat types.CacheCategory) (int, error) {
	n := 0
	m.entries.Range(func(k, v any) bool {
		mk := k.(memKey)
		if mk.cat == cat && m.entries.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n, nil
}

func (m *MemoryStore) ClearAll(_ context.Context) (int, error) {
	n := 0
	m.entries.Range(func(k, v any) bool {
		if m.entries.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n, nil
}

// SweepExpired deletes entries whose expiry has passed. An entry rewritten
// concurrently is left alone.
func (m *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	now := m.now()
	n := 0
	m.entries.Range(func(k, v any) bool {
		if !now.Before(v.(*memEntry).expiresAt) && m.entries.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n, nil
}

func (m *MemoryStore) Stats(_ context.Context) (types.CacheStats, error) {
	now := m.now()
	stats := types.CacheStats{Backend: "memory", PerCategory: map[types.CacheCategory]types.CategoryStats{}}
	m.entries.Range(func(k, v any) bool {
		stats.Add(k.(memKey).cat, !now.Before(v.(*memEntry).expiresAt))
		return true
	})
	return stats, nil
}

func (m *MemoryStore) Close() error { return nil }

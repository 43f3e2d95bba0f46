// Package cache implements the TTL key-value store used for tokens, market
// data, buying power and computed order parameters.
//
// Every backend follows the same rules: entries are immutable once written,
// Get never deletes (expired entries read as a miss and stay until
// SweepExpired), and any storage or decode failure reads as a miss.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"seller-market/internal/interfaces"
	"seller-market/internal/types"
)

// Option configures a backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Key joins identity parts into a composite cache key.
func Key(parts ...string) string {
	return strings.Join(parts, "_")
}

// TTL returns the default TTL for a category.
func TTL(cat types.CacheCategory) time.Duration {
	return cat.DefaultTTL()
}

// envelope is the persisted form used by the file and redis backends.
type envelope struct {
	Category  types.CacheCategory `json:"category"`
	Key       string              `json:"key"`
	Payload   []byte              `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

func (e envelope) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// keyedMutex serializes writers of the same key without a global lock.
type keyedMutex struct {
	locks sync.Map
}

func (k *keyedMutex) lock(id string) func() {
	v, _ := k.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func lockID(cat types.CacheCategory, key string) string {
	return string(cat) + "\x00" + key
}

// GetJSON decodes a cached entry into v. A decode failure is a miss.
func GetJSON[T any](ctx context.Context, s interfaces.CacheStore, cat types.CacheCategory, key string) (T, bool) {
	var v T
	raw, ok := s.Get(ctx, cat, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// PutJSON encodes v and stores it with the category's default TTL.
func PutJSON(ctx context.Context, s interfaces.CacheStore, cat types.CacheCategory, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, cat, key, raw, TTL(cat))
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

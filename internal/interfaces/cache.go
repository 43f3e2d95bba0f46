package interfaces

import (
	"context"
	"time"

	"seller-market/internal/types"
)

// CacheStore is a TTL key-value store partitioned by category. Read failures
// are reported as a miss.
type CacheStore interface {
	Put(ctx context.Context, cat types.CacheCategory, key string, payload []byte, ttl time.Duration) error
	Get(ctx context.Context, cat types.CacheCategory, key string) ([]byte, bool)
	Invalidate(ctx context.Context, cat types.CacheCategory, key string) error
	Clear(ctx context.Context, cat types.CacheCategory) (int, error)
	ClearAll(ctx context.Context) (int, error)
	SweepExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (types.CacheStats, error)
	Close() error
}

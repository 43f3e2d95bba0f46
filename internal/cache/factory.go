package cache

import (
	"fmt"

	"seller-market/internal/interfaces"
	"seller-market/internal/store"
)

// New builds the backend selected by cfg.Backend.
func New(cfg store.CacheConfig, opts ...Option) (interfaces.CacheStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(opts...), nil
	case "file":
		return NewFileStore(cfg.Dir, opts...)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, opts...)
	case "redis":
		return NewRedisStore(RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

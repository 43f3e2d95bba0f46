package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/types"
)

var _ interfaces.CacheStore = (*RedisStore)(nil)

// RedisConfig holds Redis cache configuration.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// RedisConfigDefaults returns defaults for a local Redis.
func RedisConfigDefaults() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "sellermarket",
	}
}

// RedisStore shares the cache between hosts. Entries are stored as JSON
// envelopes under prefix:category:key and carry their own expiry; no server
// TTL is set, so expired entries stay visible to Stats until swept.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

func NewRedisStore(cfg RedisConfig, opts ...Option) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = RedisConfigDefaults().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	o := buildOptions(opts)
	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		now:       o.now,
	}, nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) key(cat types.CacheCategory, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.keyPrefix, cat, key)
}

func (r *RedisStore) pattern(cat types.CacheCategory) string {
	if cat == "" {
		return r.keyPrefix + ":*"
	}
	return fmt.Sprintf("%s:%s:*", r.keyPrefix, cat)
}

func (r *RedisStore) categoryOf(redisKey string) types.CacheCategory {
	rest := strings.TrimPrefix(redisKey, r.keyPrefix+":")
	cat, _, _ := strings.Cut(rest, ":")
	return types.CacheCategory(cat)
}

func (r *RedisStore) Put(ctx context.Context, cat types.CacheCategory, key string, payload []byte, ttl time.Duration) error {
	now := r.now()
	raw, err := json.Marshal(envelope{
		Category:  cat,
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(cat, key), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache entry: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, cat types.CacheCategory, key string) ([]byte, bool) {
	raw, err := r.client.Get(ctx, r.key(cat, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn(ctx, "Redis cache read failed, treating as miss", "category", cat, "key", key, "error", err)
		}
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.expired(r.now()) {
		return nil, false
	}
	return env.Payload, true
}

func (r *RedisStore) Invalidate(ctx context.Context, cat types.CacheCategory, key string) error {
	return r.client.Del(ctx, r.key(cat, key)).Err()
}

// scan calls visit for each key matching pattern.
func (r *RedisStore) scan(ctx context.Context, pattern string, visit func(key string) error) error {
	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		if err := visit(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *RedisStore) deleteMatching(ctx context.Context, pattern string) (int, error) {
	n := 0
	err := r.scan(ctx, pattern, func(k string) error {
		removed, err := r.client.Del(ctx, k).Result()
		n += int(removed)
		return err
	})
	return n, err
}

func (r *RedisStore) Clear(ctx context.Context, cat types.CacheCategory) (int, error) {
	return r.deleteMatching(ctx, r.pattern(cat))
}

func (r *RedisStore) ClearAll(ctx context.Context) (int, error) {
	return r.deleteMatching(ctx, r.pattern(""))
}

// SweepExpired deletes expired envelopes. The delete is guarded by a WATCH
// transaction so an entry rewritten between read and delete survives.
func (r *RedisStore) SweepExpired(ctx context.Context) (int, error) {
	now := r.now()
	n := 0
	err := r.scan(ctx, r.pattern(""), func(k string) error {
		txErr := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, k).Bytes()
			if err == redis.Nil {
				return nil
			}
			if err != nil {
				return err
			}
			var env envelope
			if json.Unmarshal(raw, &env) == nil && !env.expired(now) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, k)
				return nil
			})
			if err == nil {
				n++
			}
			return err
		}, k)
		if txErr == redis.TxFailedErr {
			return nil
		}
		return txErr
	})
	return n, err
}

func (r *RedisStore) Stats(ctx context.Context) (types.CacheStats, error) {
	now := r.now()
	stats := types.CacheStats{Backend: "redis", PerCategory: map[types.CacheCategory]types.CategoryStats{}}
	err := r.scan(ctx, r.pattern(""), func(k string) error {
		raw, err := r.client.Get(ctx, k).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		var env envelope
		expired := json.Unmarshal(raw, &env) != nil || env.expired(now)
		stats.Add(r.categoryOf(k), expired)
		return nil
	})
	return stats, err
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

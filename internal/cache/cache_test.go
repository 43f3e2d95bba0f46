package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"seller-market/internal/interfaces"
	"seller-market/internal/logger"
	"seller-market/internal/store"
	"seller-market/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 8, 45, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type backendFactory func(t *testing.T, clock *fakeClock) interfaces.CacheStore

func backends(t *testing.T) map[string]backendFactory {
	b := map[string]backendFactory{
		"memory": func(t *testing.T, clock *fakeClock) interfaces.CacheStore {
			return NewMemoryStore(WithClock(clock.Now))
		},
		"file": func(t *testing.T, clock *fakeClock) interfaces.CacheStore {
			s, err := NewFileStore(t.TempDir(), WithClock(clock.Now))
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T, clock *fakeClock) interfaces.CacheStore {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), WithClock(clock.Now))
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			return s
		},
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		b["redis"] = func(t *testing.T, clock *fakeClock) interfaces.CacheStore {
			prefix := fmt.Sprintf("test-%d", time.Now().UnixNano())
			s, err := NewRedisStore(RedisConfig{Addr: addr, KeyPrefix: prefix}, WithClock(clock.Now))
			if err != nil {
				t.Fatalf("NewRedisStore: %v", err)
			}
			if err := s.Ping(context.Background()); err != nil {
				t.Skipf("redis not reachable: %v", err)
			}
			t.Cleanup(func() { s.ClearAll(context.Background()) })
			return s
		}
	}
	return b
}

func TestTTLBoundary(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := mk(t, clock)
			defer s.Close()

			key := Key("4580090306", "gs")
			if err := s.Put(ctx, types.CategoryBuyingPower, key, []byte(`{"buying_power":1000}`), types.BuyingPowerTTL); err != nil {
				t.Fatalf("Put: %v", err)
			}

			clock.Advance(types.BuyingPowerTTL - time.Second)
			if got, ok := s.Get(ctx, types.CategoryBuyingPower, key); !ok || string(got) != `{"buying_power":1000}` {
				t.Fatalf("expected hit just before expiry, got %q %v", got, ok)
			}

			clock.Advance(2 * time.Second)
			if _, ok := s.Get(ctx, types.CategoryBuyingPower, key); ok {
				t.Fatal("expected miss just after expiry")
			}

			// Get never deletes: the expired entry is still counted.
			stats, err := s.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.TotalEntries != 1 || stats.ExpiredEntries != 1 || stats.ValidEntries != 0 {
				t.Errorf("unexpected stats %+v", stats)
			}
		})
	}
}

func TestCategoriesAreIndependent(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t, newFakeClock())
			defer s.Close()

			key := Key("u", "gs")
			s.Put(ctx, types.CategoryToken, key, []byte("tok"), types.TokenTTL)
			if _, ok := s.Get(ctx, types.CategoryBuyingPower, key); ok {
				t.Fatal("same key in a different category must miss")
			}
			if err := s.Invalidate(ctx, types.CategoryToken, key); err != nil {
				t.Fatalf("Invalidate: %v", err)
			}
			if _, ok := s.Get(ctx, types.CategoryToken, key); ok {
				t.Fatal("expected miss after invalidate")
			}
			if err := s.Invalidate(ctx, types.CategoryToken, "absent"); err != nil {
				t.Errorf("invalidating an absent key should not fail: %v", err)
			}
		})
	}
}

func TestSweepExpiredCardinality(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := mk(t, clock)
			defer s.Close()

			for i := 0; i < 5; i++ {
				s.Put(ctx, types.CategoryOrderParams, Key("u", "gs", fmt.Sprint(i)), []byte("x"), types.OrderParamsTTL)
			}
			for i := 0; i < 3; i++ {
				s.Put(ctx, types.CategoryMarketData, Key("u", "gs", fmt.Sprint(i)), []byte("y"), types.MarketDataTTL)
			}

			clock.Advance(types.OrderParamsTTL)
			n, err := s.SweepExpired(ctx)
			if err != nil {
				t.Fatalf("SweepExpired: %v", err)
			}
			if n != 5 {
				t.Errorf("expected 5 swept, got %d", n)
			}
			if n, _ := s.SweepExpired(ctx); n != 0 {
				t.Errorf("second sweep should remove nothing, got %d", n)
			}

			stats, _ := s.Stats(ctx)
			if stats.TotalEntries != 3 || stats.PerCategory[types.CategoryMarketData].Valid != 3 {
				t.Errorf("unexpected stats after sweep %+v", stats)
			}
		})
	}
}

func TestClearAndClearAll(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t, newFakeClock())
			defer s.Close()

			s.Put(ctx, types.CategoryToken, "a", []byte("1"), types.TokenTTL)
			s.Put(ctx, types.CategoryToken, "b", []byte("2"), types.TokenTTL)
			s.Put(ctx, types.CategoryBuyingPower, "a", []byte("3"), types.BuyingPowerTTL)

			n, err := s.Clear(ctx, types.CategoryToken)
			if err != nil || n != 2 {
				t.Fatalf("Clear = %d, %v", n, err)
			}
			if _, ok := s.Get(ctx, types.CategoryBuyingPower, "a"); !ok {
				t.Fatal("Clear removed another category")
			}
			n, err = s.ClearAll(ctx)
			if err != nil || n != 1 {
				t.Fatalf("ClearAll = %d, %v", n, err)
			}
		})
	}
}

func TestPutOverwrites(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := mk(t, clock)
			defer s.Close()

			s.Put(ctx, types.CategoryToken, "k", []byte("old"), time.Minute)
			clock.Advance(30 * time.Second)
			s.Put(ctx, types.CategoryToken, "k", []byte("new"), time.Minute)
			clock.Advance(45 * time.Second)
			got, ok := s.Get(ctx, types.CategoryToken, "k")
			if !ok || string(got) != "new" {
				t.Fatalf("expected refreshed entry, got %q %v", got, ok)
			}
		})
	}
}

func TestConcurrentDistinctKeys(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t, newFakeClock())
			defer s.Close()

			const workers = 16
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key := Key(fmt.Sprintf("user%d", i), "gs")
					payload := []byte(fmt.Sprintf("payload-%d", i))
					for j := 0; j < 20; j++ {
						if err := s.Put(ctx, types.CategoryToken, key, payload, types.TokenTTL); err != nil {
							t.Errorf("Put: %v", err)
							return
						}
						if got, ok := s.Get(ctx, types.CategoryToken, key); !ok || string(got) != string(payload) {
							t.Errorf("key %s read %q %v", key, got, ok)
							return
						}
					}
				}(i)
			}
			wg.Wait()

			stats, _ := s.Stats(ctx)
			if stats.ValidEntries != workers {
				t.Errorf("expected %d entries, got %+v", workers, stats)
			}
		})
	}
}

func TestConcurrentWritersSameKey(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t, newFakeClock())
			defer s.Close()

			const writers = 8
			key := Key("4580090306", "gs", "IRO1MHRN0001")
			payloads := make([][]byte, writers)
			for i := range payloads {
				payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 64*1024)
			}
			whole := func(got []byte) bool {
				if len(got) == 0 {
					return false
				}
				i := int(got[0] - 'a')
				return i >= 0 && i < writers && bytes.Equal(got, payloads[i])
			}

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					for j := 0; j < 10; j++ {
						if err := s.Put(ctx, types.CategoryMarketData, key, payloads[i], types.MarketDataTTL); err != nil {
							t.Errorf("Put: %v", err)
							return
						}
					}
				}(i)
				go func() {
					defer wg.Done()
					for j := 0; j < 20; j++ {
						if got, ok := s.Get(ctx, types.CategoryMarketData, key); ok && !whole(got) {
							t.Errorf("read a torn entry of %d bytes", len(got))
							return
						}
					}
				}()
			}
			wg.Wait()

			got, ok := s.Get(ctx, types.CategoryMarketData, key)
			if !ok || !whole(got) {
				t.Fatalf("final read %d bytes, ok=%v", len(got), ok)
			}
			stats, _ := s.Stats(ctx)
			if stats.TotalEntries != 1 {
				t.Errorf("expected one entry for the key, got %+v", stats)
			}
		})
	}
}

func TestCorruptFileReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.Put(ctx, types.CategoryMarketData, "IRO1", []byte("{}"), time.Minute)
	if err := os.WriteFile(s.path(types.CategoryMarketData, "IRO1"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(ctx, types.CategoryMarketData, "IRO1"); ok {
		t.Fatal("corrupt entry must read as a miss")
	}
	if n, _ := s.SweepExpired(ctx); n != 1 {
		t.Errorf("corrupt entry should be swept, got %d", n)
	}
}

func TestGetJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	want := types.AccountBalance{BuyingPower: 1_000_014_598}
	if err := PutJSON(ctx, s, types.CategoryBuyingPower, Key("u", "gs"), want); err != nil {
		t.Fatal(err)
	}
	got, ok := GetJSON[types.AccountBalance](ctx, s, types.CategoryBuyingPower, Key("u", "gs"))
	if !ok || got.BuyingPower != want.BuyingPower {
		t.Fatalf("GetJSON = %+v %v", got, ok)
	}

	s.Put(ctx, types.CategoryBuyingPower, "bad", []byte("nope"), time.Minute)
	if _, ok := GetJSON[types.AccountBalance](ctx, s, types.CategoryBuyingPower, "bad"); ok {
		t.Fatal("undecodable payload must be a miss")
	}
}

func TestKeyAndTTL(t *testing.T) {
	if got := Key("4580090306", "gs", "IRO1MHRN0001"); got != "4580090306_gs_IRO1MHRN0001" {
		t.Errorf("Key = %q", got)
	}
	if TTL(types.CategoryToken) != time.Hour || TTL(types.CategoryOrderParams) != 30*time.Second {
		t.Error("unexpected default TTLs")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(store.CacheConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "c.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", s)
	}
	if _, err := New(store.CacheConfig{Backend: "memcached"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewRedisStore(t *testing.T) {
	if _, err := NewRedisStore(RedisConfig{}); err == nil {
		t.Fatal("expected error for empty addr")
	}
	s, err := NewRedisStore(RedisConfig{Addr: "localhost:6379"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	if s.keyPrefix != "sellermarket" {
		t.Errorf("expected default prefix, got %q", s.keyPrefix)
	}
	if got := s.key(types.CategoryToken, "u_gs"); got != "sellermarket:token:u_gs" {
		t.Errorf("key = %q", got)
	}
	if got := s.categoryOf("sellermarket:market_data:u_gs_IRO1"); got != types.CategoryMarketData {
		t.Errorf("categoryOf = %q", got)
	}
}

func TestRedisReadFailureIsLoggedAsMiss(t *testing.T) {
	var buf bytes.Buffer
	if err := logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "json", Output: &buf}); err != nil {
		t.Fatal(err)
	}
	defer logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "json"})

	s, err := NewRedisStore(RedisConfig{Addr: "127.0.0.1:1"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := types.WithRunID(context.Background(), "run-42")
	if _, ok := s.Get(ctx, types.CategoryToken, Key("u", "gs")); ok {
		t.Fatal("unreachable redis must read as a miss")
	}
	out := buf.String()
	if !strings.Contains(out, `"run_id":"run-42"`) || !strings.Contains(out, "Redis cache read failed") {
		t.Errorf("read failure not logged with run id: %s", out)
	}
}

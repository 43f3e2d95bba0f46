package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"seller-market/internal/interfaces"
	"seller-market/internal/types"
)

var _ interfaces.CacheStore = (*FileStore)(nil)

// FileStore persists one JSON envelope per entry under
// <dir>/<category>/<md5(key)>.json. Writes go to a temp file in the same
// directory and are renamed into place.
type FileStore struct {
	dir     string
	now     func() time.Time
	writers keyedMutex
}

func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		dir = ".cache"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	o := buildOptions(opts)
	return &FileStore{dir: dir, now: o.now}, nil
}

func (f *FileStore) path(cat types.CacheCategory, key string) string {
	sum := md5.Sum([]byte(key))
	return filepath.Join(f.dir, string(cat), hex.EncodeToString(sum[:])+".json")
}

func (f *FileStore) Put(_ context.Context, cat types.CacheCategory, key string, payload []byte, ttl time.Duration) error {
	now := f.now()
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

	unlock := f.writers.lock(lockID(cat, key))
	defer unlock()

	target := f.path(cat, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (f *FileStore) read(path string) (envelope, bool) {
	var env envelope
	raw, err := os.ReadFile(path)
	if err != nil {
		return env, false
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, false
	}
	return env, true
}

func (f *FileStore) Get(_ context.Context, cat types.CacheCategory, key string) ([]byte, bool) {
	env, ok := f.read(f.path(cat, key))
	if !ok || env.Key != key || env.expired(f.now()) {
		return nil, false
	}
	return env.Payload, true
}

func (f *FileStore) Invalidate(_ context.Context, cat types.CacheCategory, key string) error {
	unlock := f.writers.lock(lockID(cat, key))
	defer unlock()
	err := os.Remove(f.path(cat, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// walk visits every entry file of one category.
func (f *FileStore) walk(cat types.CacheCategory, visit func(path string, env envelope, ok bool)) {
	entries, err := os.ReadDir(filepath.Join(f.dir, string(cat)))
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p := filepath.Join(f.dir, string(cat), e.Name())
		env, ok := f.read(p)
		visit(p, env, ok)
	}
}

func (f *FileStore) Clear(_ context.Context, cat types.CacheCategory) (int, error) {
	n := 0
	var firstErr error
	f.walk(cat, func(p string, _ envelope, _ bool) {
		if err := os.Remove(p); err == nil {
			n++
		} else if firstErr == nil && !errors.Is(err, fs.ErrNotExist) {
			firstErr = err
		}
	})
	return n, firstErr
}

func (f *FileStore) ClearAll(ctx context.Context) (int, error) {
	total := 0
	var firstErr error
	for _, cat := range types.Categories {
		n, err := f.Clear(ctx, cat)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// SweepExpired removes expired and unreadable entry files. Each removal is
// re-checked under the key's writer lock so a fresh write is never lost.
func (f *FileStore) SweepExpired(_ context.Context) (int, error) {
	now := f.now()
	n := 0
	for _, cat := range types.Categories {
		f.walk(cat, func(p string, env envelope, ok bool) {
			if ok && !env.expired(now) {
				return
			}
			if ok {
				unlock := f.writers.lock(lockID(cat, env.Key))
				defer unlock()
				if cur, still := f.read(p); still && !cur.expired(now) {
					return
				}
			}
			if os.Remove(p) == nil {
				n++
			}
		})
	}
	return n, nil
}

func (f *FileStore) Stats(_ context.Context) (types.CacheStats, error) {
	now := f.now()
	stats := types.CacheStats{Backend: "file", PerCategory: map[types.CacheCategory]types.CategoryStats{}}
	for _, cat := range types.Categories {
		f.walk(cat, func(_ string, env envelope, ok bool) {
			stats.Add(cat, !ok || env.expired(now))
		})
	}
	return stats, nil
}

func (f *FileStore) Close() error { return nil }

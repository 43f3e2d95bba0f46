package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"seller-market/internal/interfaces"
	"seller-market/internal/types"
)

var _ interfaces.CacheStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	category   TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	payload    BLOB    NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (category, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at);
`

// SQLiteStore keeps entries in a local SQLite database. Expiry timestamps
// are stored as unix nanoseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	o := buildOptions(opts)
	return &SQLiteStore{db: db, now: o.now}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, cat types.CacheCategory, key string, payload []byte, ttl time.Duration) error {
	now := s.now()
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (category, key, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (category, key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		string(cat), key, payload, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, cat types.CacheCategory, key string) ([]byte, bool) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM cache_entries WHERE category = ? AND key = ? AND expires_at > ?`,
		string(cat), key, s.now().UnixNano()).Scan(&payload)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (s *SQLiteStore) Invalidate(ctx context.Context, cat types.CacheCategory, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE category = ? AND key = ?`, string(cat), key)
	return err
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Clear(ctx context.Context, cat types.CacheCategory) (int, error) {
	return s.exec(ctx, `DELETE FROM cache_entries WHERE category = ?`, string(cat))
}

func (s *SQLiteStore) ClearAll(ctx context.Context) (int, error) {
	return s.exec(ctx, `DELETE FROM cache_entries`)
}

func (s *SQLiteStore) SweepExpired(ctx context.Context) (int, error) {
	return s.exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UnixNano())
}

func (s *SQLiteStore) Stats(ctx context.Context) (types.CacheStats, error) {
	stats := types.CacheStats{Backend: "sqlite", PerCategory: map[types.CacheCategory]types.CategoryStats{}}
	rows, err := s.db.QueryContext(ctx, `
		SELECT category,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM cache_entries GROUP BY category`, s.now().UnixNano())
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cat            string
			total, expired int
		)
		if err := rows.Scan(&cat, &total, &expired); err != nil {
			return stats, err
		}
		stats.PerCategory[types.CacheCategory(cat)] = types.CategoryStats{
			Total:   total,
			Valid:   total - expired,
			Expired: expired,
		}
		stats.TotalEntries += total
		stats.ExpiredEntries += expired
		stats.ValidEntries += total - expired
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

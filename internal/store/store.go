// Package store persists catalog state in a local SQLite database: cached
// responses of remote fetches and the user stratum of each item, so edits
// survive restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// ErrMiss is returned when no fresh cache entry exists for a key.
var ErrMiss = errors.New("store: cache miss")

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup. Times are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS fetch_cache (
    key          TEXT PRIMARY KEY,
    url          TEXT NOT NULL,
    status       INTEGER NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    headers      BLOB,
    body         BLOB NOT NULL,
    fetched_at   INTEGER NOT NULL,
    expires_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS fetch_cache_expires ON fetch_cache(expires_at);

CREATE TABLE IF NOT EXISTS user_strata (
    item_id    TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Store is a SQLite database in WAL mode. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path, enables WAL mode and busy
// timeout, and creates the schema if it does not exist.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection keeps PRAGMAs in
	// effect and avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// Stats summarises the database content.
type Stats struct {
	Entries    int   `json:"entries"`
	Expired    int   `json:"expired"`
	Bytes      int64 `json:"bytes"`
	UserStrata int   `json:"userStrata"`
}

// Stats counts cache entries, expired entries, cached body bytes and saved
// user strata.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	now := s.now().UnixMilli()
	const q = `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(LENGTH(body)), 0)
		FROM fetch_cache`
	if err := s.db.QueryRowContext(ctx, q, now).Scan(&st.Entries, &st.Expired, &st.Bytes); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_strata").Scan(&st.UserStrata); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

// Clear removes every cache entry. Saved user strata are kept.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM fetch_cache")
	if err != nil {
		return 0, fmt.Errorf("store: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeExpired removes cache entries whose expiry has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM fetch_cache WHERE expires_at <= ?", s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: purge expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

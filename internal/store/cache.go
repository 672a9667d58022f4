package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// CacheEntry is one cached response.
type CacheEntry struct {
	Key         string
	URL         string
	Status      int
	ContentType string
	Headers     map[string]string
	Body        []byte
	FetchedAt   time.Time
	ExpiresAt   time.Time
}

// GetCached returns the entry stored under key if it has not expired.
func (s *Store) GetCached(ctx context.Context, key string) (*CacheEntry, error) {
	const q = `
		SELECT url, status, content_type, headers, body, fetched_at, expires_at
		FROM fetch_cache WHERE key = ?`
	var (
		e                  = CacheEntry{Key: key}
		headers            []byte
		fetched, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&e.URL, &e.Status, &e.ContentType, &headers, &e.Body, &fetched, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("store: get cached %q: %w", key, err)
	}
	e.FetchedAt = time.UnixMilli(fetched)
	e.ExpiresAt = time.UnixMilli(expiresAt)
	if !e.ExpiresAt.After(s.now()) {
		return nil, ErrMiss
	}
	if len(headers) > 0 {
		if err := bson.Unmarshal(headers, &e.Headers); err != nil {
			return nil, fmt.Errorf("store: decode headers %q: %w", key, err)
		}
	}
	return &e, nil
}

// PutCached upserts e. FetchedAt defaults to now.
func (s *Store) PutCached(ctx context.Context, e CacheEntry) error {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = s.now()
	}
	var headers []byte
	if len(e.Headers) > 0 {
		var err error
		if headers, err = bson.Marshal(e.Headers); err != nil {
			return fmt.Errorf("store: encode headers %q: %w", e.Key, err)
		}
	}
	if e.Body == nil {
		e.Body = []byte{}
	}
	const q = `
		INSERT INTO fetch_cache (key, url, status, content_type, headers, body, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		    url = excluded.url, status = excluded.status, content_type = excluded.content_type,
		    headers = excluded.headers, body = excluded.body,
		    fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`
	_, err := s.db.ExecContext(ctx, q, e.Key, e.URL, e.Status, e.ContentType, headers, e.Body,
		e.FetchedAt.UnixMilli(), e.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: put cached %q: %w", e.Key, err)
	}
	return nil
}

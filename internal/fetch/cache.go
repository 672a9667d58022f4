package fetch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TerriaJS/terriajs-sub017/internal/store"
)

// ErrCacheDuration is returned for malformed cache duration strings.
var ErrCacheDuration = errors.New("fetch: invalid cache duration")

// ParseCacheDuration reads proxy cache hints such as "1d", "2h", "30m",
// "45s", "1w" or "0d". A bare number is seconds.
func ParseCacheDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrCacheDuration)
	}
	unit := time.Second
	num := s
	switch s[len(s)-1] {
	case 's':
		num = s[:len(s)-1]
	case 'm':
		unit, num = time.Minute, s[:len(s)-1]
	case 'h':
		unit, num = time.Hour, s[:len(s)-1]
	case 'd':
		unit, num = 24*time.Hour, s[:len(s)-1]
	case 'w':
		unit, num = 7*24*time.Hour, s[:len(s)-1]
	case 'y':
		unit, num = 365*24*time.Hour, s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrCacheDuration, s)
	}
	return time.Duration(n * float64(unit)), nil
}

// CacheDurationHeader lets a caller override the TTL of one request. It is
// stripped before the request reaches the wrapped fetcher.
const CacheDurationHeader = "X-Terria-Cache-Duration"

// CachingFetcher serves GET requests from the store when a fresh entry
// exists and records 200 responses. Other methods and ranged requests pass
// through.
type CachingFetcher struct {
	next   Fetcher
	store  *store.Store
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewCachingFetcher wraps next. ttl applies to requests without a
// CacheDurationHeader.
func NewCachingFetcher(next Fetcher, st *store.Store, ttl time.Duration, logger *zap.SugaredLogger) *CachingFetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CachingFetcher{next: next, store: st, ttl: ttl, logger: logger}
}

// Fetch implements Fetcher.
func (c *CachingFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	ttl := c.ttl
	if hint, ok := req.Header[CacheDurationHeader]; ok {
		if d, err := ParseCacheDuration(hint); err == nil {
			ttl = d
		}
		h := make(map[string]string, len(req.Header))
		for k, v := range req.Header {
			if k != CacheDurationHeader {
				h[k] = v
			}
		}
		req.Header = h
	}
	if (req.Method != "" && req.Method != http.MethodGet) || ttl <= 0 || hasHeader(req, "Range") {
		return c.next.Fetch(ctx, req)
	}

	key := cacheKey(req)
	if e, err := c.store.GetCached(ctx, key); err == nil {
		c.logger.Debugw("cache hit", "url", req.URL)
		return &Response{
			URL:         e.URL,
			StatusCode:  e.Status,
			ContentType: e.ContentType,
			Header:      e.Headers,
			Body:        e.Body,
			FromCache:   true,
		}, nil
	} else if !errors.Is(err, store.ErrMiss) {
		c.logger.Warnw("cache read failed", "url", req.URL, "error", err)
	}

	resp, err := c.next.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	entry := store.CacheEntry{
		Key:         key,
		URL:         resp.URL,
		Status:      resp.StatusCode,
		ContentType: resp.ContentType,
		Headers:     resp.Header,
		Body:        resp.Body,
		ExpiresAt:   time.Now().Add(ttl),
	}
	if err := c.store.PutCached(ctx, entry); err != nil {
		c.logger.Warnw("cache write failed", "url", req.URL, "error", err)
	}
	return resp, nil
}

func cacheKey(req Request) string {
	var b strings.Builder
	b.WriteString("GET ")
	b.WriteString(req.URL)
	if auth := req.Header["Authorization"]; auth != "" {
		b.WriteString(" auth:")
		h := fnv.New64a()
		h.Write([]byte(auth))
		b.WriteString(strconv.FormatUint(h.Sum64(), 16))
	}
	return b.String()
}

func hasHeader(req Request, name string) bool {
	for k := range req.Header {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TerriaJS/terriajs-sub017/internal/config"
	"github.com/TerriaJS/terriajs-sub017/internal/store"
)

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"method":%q,"ua":%q}`, r.Method, r.UserAgent())
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
			w.Write(body)
		default:
			http.Error(w, "nope", http.StatusTeapot)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "terria-test")
	ctx := context.Background()

	v, err := JSON(ctx, f, Get(srv.URL+"/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"method": "GET", "ua": "terria-test"}, v)

	req, err := PostJSON(srv.URL+"/echo", map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	resp, err := f.Fetch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"a":1}`, string(resp.Body))

	form := PostForm(srv.URL+"/echo", map[string]any{"q": "x y", "n": 2.0}, nil)
	text, err := Text(ctx, f, form)
	require.NoError(t, err)
	assert.Contains(t, text, "q=x+y")
	assert.Contains(t, text, "n=2")

	_, err = f.Fetch(ctx, Get(srv.URL+"/missing", nil))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTeapot, se.StatusCode)
	assert.True(t, IsStatus(fmt.Errorf("wrapped: %w", err), http.StatusTeapot))
}

func TestXML(t *testing.T) {
	t.Parallel()
	stub := NewStub().Text("http://x/feed.xml", "\n<rss><channel><title>T</title></channel></rss>")
	doc, err := XML(context.Background(), stub, Get("http://x/feed.xml", nil))
	require.NoError(t, err)
	assert.Equal(t, "T", doc.FindElement("//channel/title").Text())

	stub.Text("http://x/bad.xml", "<rss>")
	_, err = XML(context.Background(), stub, Get("http://x/bad.xml", nil))
	assert.Error(t, err)
}

func TestParseCacheDuration(t *testing.T) {
	t.Parallel()
	tests := map[string]time.Duration{
		"1d":  24 * time.Hour,
		"0d":  0,
		"2h":  2 * time.Hour,
		"30m": 30 * time.Minute,
		"45s": 45 * time.Second,
		"1w":  7 * 24 * time.Hour,
		"90":  90 * time.Second,
	}
	for in, want := range tests {
		got, err := ParseCacheDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "d", "-1d", "soon"} {
		_, err := ParseCacheDuration(bad)
		assert.ErrorIs(t, err, ErrCacheDuration, bad)
	}
}

func TestProxyURL(t *testing.T) {
	t.Parallel()
	cfg := config.ProxyConfig{BaseURL: "proxy/", CorsDomains: []string{"terria.io"}}
	tests := []struct {
		name     string
		url      string
		duration string
		force    bool
		want     string
	}{
		{"with duration", "https://example.com/a.json", "1d", false, "proxy/_1d/https://example.com/a.json"},
		{"without duration", "https://example.com/a.json", "", false, "proxy/https://example.com/a.json"},
		{"cors domain", "https://data.terria.io/a.json", "1d", false, "https://data.terria.io/a.json"},
		{"forced", "https://terria.io/a.json", "0d", true, "proxy/_0d/https://terria.io/a.json"},
		{"relative", "data/a.json", "1d", false, "data/a.json"},
		{"data uri", "data:application/json,{}", "1d", false, "data:application/json,{}"},
		{"already proxied", "proxy/_1d/https://example.com/a.json", "1d", false, "proxy/_1d/https://example.com/a.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ProxyURL(cfg, tt.url, tt.duration, tt.force))
		})
	}
	assert.Equal(t, "https://example.com/a", ProxyURL(config.ProxyConfig{}, "https://example.com/a", "1d", true))
}

func TestCachingFetcher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var hits atomic.Int32
	stub := NewStub().Handle("http://x/data.json", func(req Request) (*Response, error) {
		hits.Add(1)
		return &Response{URL: req.URL, StatusCode: 200, ContentType: "application/json", Body: []byte(`[1]`)}, nil
	})
	cf := NewCachingFetcher(stub, st, time.Hour, nil)

	for range 3 {
		b, err := Blob(ctx, cf, Get("http://x/data.json", nil))
		require.NoError(t, err)
		assert.Equal(t, "[1]", string(b))
	}
	assert.Equal(t, int32(1), hits.Load(), "later requests are served from the store")

	resp, err := cf.Fetch(ctx, Get("http://x/data.json", nil))
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Equal(t, "application/json", resp.ContentType)

	_, err = cf.Fetch(ctx, Get("http://x/data.json?fresh", map[string]string{CacheDurationHeader: "0d"}))
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "a zero duration bypasses the cache")
	assert.NotContains(t, stub.Requests()[len(stub.Requests())-1].Header, CacheDurationHeader)

	post, err := PostJSON("http://x/data.json", map[string]any{}, nil)
	require.NoError(t, err)
	_, err = cf.Fetch(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load(), "POST is never cached")
}

func TestCachingFetcherSkipsPartialContent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	const full = "0123456789"
	var hits atomic.Int32
	stub := NewStub().Handle("http://x/tiles.bin", func(req Request) (*Response, error) {
		hits.Add(1)
		if req.Header["range"] != "" {
			return &Response{URL: req.URL, StatusCode: http.StatusPartialContent, Body: []byte(full[:4])}, nil
		}
		return &Response{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(full)}, nil
	})
	cf := NewCachingFetcher(stub, st, time.Hour, nil)

	part, err := cf.Fetch(ctx, Get("http://x/tiles.bin", map[string]string{"range": "bytes=0-3"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusPartialContent, part.StatusCode)
	assert.Equal(t, "0123", string(part.Body))

	b, err := Blob(ctx, cf, Get("http://x/tiles.bin", nil))
	require.NoError(t, err)
	assert.Equal(t, full, string(b))
	assert.Equal(t, int32(2), hits.Load(), "a ranged response is never stored")

	b, err = Blob(ctx, cf, Get("http://x/tiles.bin", nil))
	require.NoError(t, err)
	assert.Equal(t, full, string(b))
	assert.Equal(t, int32(2), hits.Load())
}

func TestStub(t *testing.T) {
	t.Parallel()
	stub := NewStub().JSON("http://x/a", map[string]any{"k": "v"}).Status("http://x/secret", http.StatusUnauthorized)
	ctx := context.Background()

	v, err := JSON(ctx, stub, Get("http://x/a?page=2", nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, v)
	assert.Equal(t, 1, stub.Calls("http://x/a"))

	_, err = stub.Fetch(ctx, Get("http://x/secret", nil))
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	_, err = stub.Fetch(ctx, Get("http://x/unknown", nil))
	assert.True(t, IsStatus(err, http.StatusNotFound))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = stub.Fetch(cancelled, Get("http://x/a", nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "http://x/a/b.png", Resolve("http://x/a/model.gltf", "b.png"))
	assert.Equal(t, "http://y/c.png", Resolve("http://x/a/", "http://y/c.png"))
	assert.Equal(t, "data:image/png;base64,AA", Resolve("http://x/", "data:image/png;base64,AA"))
}

func TestDataURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "data:image/png;base64,AQI=", DataURL("tex/wall.PNG", []byte{1, 2}))
	assert.Equal(t, "data:model/gltf+json;base64,e30=", DataURL("model.gltf", []byte("{}")))
	assert.Equal(t, "data:application/octet-stream;base64,", DataURL("blob.unknownext", nil))
}

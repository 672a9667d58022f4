package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// StubFunc answers a stubbed request.
type StubFunc func(req Request) (*Response, error)

// Stub is an in-memory Fetcher keyed by URL. A request matches an exact URL
// first and then the URL without its query string. Unmatched requests fail
// with a 404 StatusError.
type Stub struct {
	mu     sync.Mutex
	routes map[string]StubFunc
	calls  map[string]int
	log    []Request
}

// NewStub returns an empty stub.
func NewStub() *Stub {
	return &Stub{routes: make(map[string]StubFunc), calls: make(map[string]int)}
}

// Handle routes u to fn.
func (s *Stub) Handle(u string, fn StubFunc) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[u] = fn
	return s
}

// Text answers u with a 200 and body.
func (s *Stub) Text(u, body string) *Stub {
	return s.Handle(u, func(req Request) (*Response, error) {
		return &Response{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
	})
}

// JSON answers u with v encoded as JSON.
func (s *Stub) JSON(u string, v any) *Stub {
	data, err := json.Marshal(v)
	if err != nil {
		panic("fetch: stub JSON: " + err.Error())
	}
	return s.Handle(u, func(req Request) (*Response, error) {
		return &Response{URL: req.URL, StatusCode: http.StatusOK, ContentType: "application/json", Body: data}, nil
	})
}

// Status answers u with a non-success status.
func (s *Stub) Status(u string, code int) *Stub {
	return s.Handle(u, func(req Request) (*Response, error) {
		return nil, &StatusError{URL: req.URL, StatusCode: code}
	})
}

// Fetch implements Fetcher.
func (s *Stub) Fetch(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	fn, key := s.match(req.URL)
	s.calls[key]++
	s.log = append(s.log, req)
	s.mu.Unlock()
	if fn == nil {
		return nil, &StatusError{URL: req.URL, StatusCode: http.StatusNotFound}
	}
	return fn(req)
}

func (s *Stub) match(u string) (StubFunc, string) {
	if fn, ok := s.routes[u]; ok {
		return fn, u
	}
	if base, _, ok := strings.Cut(u, "?"); ok {
		if fn, ok := s.routes[base]; ok {
			return fn, base
		}
	}
	return nil, u
}

// Calls returns how many requests matched u.
func (s *Stub) Calls(u string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[u]
}

// Requests returns every request seen, in order.
func (s *Stub) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.log...)
}

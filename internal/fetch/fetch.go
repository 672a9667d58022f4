// Package fetch is the network boundary of catalog items. Loaders never talk
// to net/http directly: they are handed a Fetcher, which may be the plain
// HTTP implementation, a caching decorator backed by the store, or an
// in-memory stub in tests.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"
)

// Request describes one outbound call. An empty Method means GET.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

// Response is a fully read response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Header      map[string]string
	Body        []byte
	FromCache   bool
}

// Fetcher performs requests. Implementations must be safe for concurrent
// use.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s returned HTTP %d", e.URL, e.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Get builds a GET request with optional headers.
func Get(u string, header map[string]string) Request {
	return Request{Method: http.MethodGet, URL: u, Header: header}
}

// PostJSON builds a POST request with a JSON body.
func PostJSON(u string, body any, header map[string]string) (Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Request{}, fmt.Errorf("fetch: encode body for %s: %w", u, err)
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range header {
		h[k] = v
	}
	return Request{Method: http.MethodPost, URL: u, Header: h, Body: data}, nil
}

// PostForm builds a POST request with a form-encoded body. Non-string values
// are JSON encoded.
func PostForm(u string, fields map[string]any, header map[string]string) Request {
	form := url.Values{}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			form.Set(k, s)
			continue
		}
		b, _ := json.Marshal(v)
		form.Set(k, string(b))
	}
	h := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range header {
		h[k] = v
	}
	return Request{Method: http.MethodPost, URL: u, Header: h, Body: []byte(form.Encode())}
}

// Blob fetches req and returns the body.
func Blob(ctx context.Context, f Fetcher, req Request) ([]byte, error) {
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Text fetches req and returns the body as a string.
func Text(ctx context.Context, f Fetcher, req Request) (string, error) {
	b, err := Blob(ctx, f, req)
	return string(b), err
}

// JSON fetches req and decodes the body into a generic value.
func JSON(ctx context.Context, f Fetcher, req Request) (any, error) {
	b, err := Blob(ctx, f, req)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("fetch: decode JSON from %s: %w", req.URL, err)
	}
	return v, nil
}

// DecodeJSON fetches req and decodes the body into target.
func DecodeJSON(ctx context.Context, f Fetcher, req Request, target any) error {
	b, err := Blob(ctx, f, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("fetch: decode JSON from %s: %w", req.URL, err)
	}
	return nil
}

// XML fetches req and parses the body as an XML document.
func XML(ctx context.Context, f Fetcher, req Request) (*etree.Document, error) {
	b, err := Blob(ctx, f, req)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(bytes.TrimSpace(b)); err != nil {
		return nil, fmt.Errorf("fetch: parse XML from %s: %w", req.URL, err)
	}
	return doc, nil
}

// WithQuery returns u with the given query parameters set, replacing any
// existing values of the same name.
func WithQuery(u string, params map[string]string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("fetch: parse URL %q: %w", u, err)
	}
	q := parsed.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// Resolve resolves ref against base. Absolute refs are returned unchanged.
func Resolve(base, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

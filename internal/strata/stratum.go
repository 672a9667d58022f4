package strata

import (
	"context"
	"errors"
	"maps"
	"sync"

	"golang.org/x/sync/singleflight"
)

var errNoStratum = errors.New("strata: load returned no stratum")

// Stratum is a partial view of trait values.
type Stratum interface {
	// Value returns the trait value held by the stratum, if any.
	Value(trait string) (any, bool)
}

// Values is an immutable stratum backed by a map. It is what load strata
// produce once their fetch completes.
type Values map[string]any

// Value implements Stratum. Nil values are treated as absent.
func (v Values) Value(trait string) (any, bool) {
	x, ok := v[trait]
	return x, ok && x != nil
}

// Static is a writable stratum such as "definition" or "user". It is safe
// for concurrent use.
type Static struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewStatic returns a static stratum holding a copy of values.
func NewStatic(values map[string]any) *Static {
	s := &Static{values: make(map[string]any, len(values))}
	maps.Copy(s.values, values)
	return s
}

// Value implements Stratum.
func (s *Static) Value(trait string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[trait]
	return v, ok && v != nil
}

// Set stores v for trait. A nil v removes the trait.
func (s *Static) Set(trait string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == nil {
		delete(s.values, trait)
		return
	}
	s.values[trait] = v
}

// Replace swaps the whole content of the stratum.
func (s *Static) Replace(values map[string]any) {
	fresh := make(map[string]any, len(values))
	maps.Copy(fresh, values)
	s.mu.Lock()
	s.values = fresh
	s.mu.Unlock()
}

// Snapshot returns a copy of the stratum's content.
func (s *Static) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Len returns the number of traits set.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// LoadState is the tagged state of a Loadable stratum.
type LoadState int

const (
	NotLoaded LoadState = iota // No load attempted since creation or reset
	Loading                    // A load is in flight
	Loaded                     // The stratum holds fetched values
	Failed                     // The last load returned an error
)

// String returns the lower-case state name.
func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "not-loaded"
	}
}

// LoadFunc computes a stratum, typically from a network fetch.
type LoadFunc func(ctx context.Context) (Stratum, error)

// Loadable is a stratum populated asynchronously by a LoadFunc. Until it is
// Loaded, reads behave as if the stratum were absent. A successful load is
// kept until Reload or Reset; a failed load is retried on the next Load.
type Loadable struct {
	load  LoadFunc
	group singleflight.Group

	mu      sync.RWMutex
	state   LoadState
	stratum Stratum
	err     error
}

// NewLoadable returns a NotLoaded stratum computed by load.
func NewLoadable(load LoadFunc) *Loadable {
	return &Loadable{load: load}
}

// Value implements Stratum.
func (l *Loadable) Value(trait string) (any, bool) {
	l.mu.RLock()
	st, state := l.stratum, l.state
	l.mu.RUnlock()
	if state != Loaded || st == nil {
		return nil, false
	}
	return st.Value(trait)
}

// State returns the current state and, when Failed, the error.
func (l *Loadable) State() (LoadState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, l.err
}

// Load runs the load function unless the stratum is already Loaded.
// Concurrent callers share one in-flight run.
func (l *Loadable) Load(ctx context.Context) error {
	if state, _ := l.State(); state == Loaded {
		return nil
	}
	return l.run(ctx)
}

// Reload runs the load function even when the stratum is Loaded. The old
// values stay readable until the new load succeeds.
func (l *Loadable) Reload(ctx context.Context) error {
	return l.run(ctx)
}

// Reset returns the stratum to NotLoaded and drops its values.
func (l *Loadable) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state, l.stratum, l.err = NotLoaded, nil, nil
}

func (l *Loadable) run(ctx context.Context) error {
	_, err, _ := l.group.Do("load", func() (any, error) {
		l.mu.Lock()
		prev := l.state
		if prev != Loaded {
			l.state = Loading
		}
		l.mu.Unlock()

		st, err := l.load(ctx)
		if err == nil && st == nil {
			err = errNoStratum
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if err != nil {
			if prev == Loaded {
				// Keep serving the previous values; the reload error is
				// still reported to the caller.
				return nil, err
			}
			l.state, l.stratum, l.err = Failed, nil, err
			return nil, err
		}
		l.state, l.stratum, l.err = Loaded, st, nil
		return nil, nil
	})
	return err
}

// Package loader runs one asynchronous load track of a catalog item. A
// Loader moves through idle, loading, ready and failed states; concurrent
// Load calls while a run is in flight share that run's result instead of
// starting another.
package loader

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the position of a Loader in its state machine.
type State int

const (
	Idle    State = iota // Never loaded, or invalidated
	Loading              // A run is in flight
	Ready                // The last run succeeded
	Failed               // The last run returned an error
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Result is the outcome of a run. A zero Result means success.
type Result struct {
	Err      error
	Finished time.Time
}

// OK reports whether the run succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Func performs the work of one run.
type Func func(ctx context.Context) error

// Loader is one load track. The zero value is not usable; call New.
type Loader struct {
	name  string
	fn    Func
	group singleflight.Group

	mu     sync.RWMutex
	state  State
	result Result
}

// New returns an idle loader running fn.
func New(name string, fn Func) *Loader {
	return &Loader{name: name, fn: fn}
}

// Name returns the track name given to New.
func (l *Loader) Name() string { return l.name }

// Load runs the track unless it is already Ready, in which case the stored
// result is returned. Errors are returned inside the Result, never panicked.
func (l *Loader) Load(ctx context.Context) Result {
	l.mu.RLock()
	if l.state == Ready {
		res := l.result
		l.mu.RUnlock()
		return res
	}
	l.mu.RUnlock()

	v, _, _ := l.group.Do(l.name, func() (any, error) {
		l.mu.Lock()
		if l.state == Ready {
			res := l.result
			l.mu.Unlock()
			return res, nil
		}
		l.state = Loading
		l.mu.Unlock()

		err := l.fn(ctx)
		res := Result{Err: err, Finished: time.Now()}

		l.mu.Lock()
		defer l.mu.Unlock()
		l.result = res
		if err != nil {
			l.state = Failed
		} else {
			l.state = Ready
		}
		return res, nil
	})
	return v.(Result)
}

// State returns the current state.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsLoading reports whether a run is in flight.
func (l *Loader) IsLoading() bool { return l.State() == Loading }

// Result returns the outcome of the last completed run.
func (l *Loader) Result() Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result
}

// Invalidate returns a settled loader to Idle so the next Load runs again.
// A run in flight is not affected.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Loading {
		l.state = Idle
	}
}

// Package telemetry provides a JSONL event stream recording catalog item
// load lifecycles. Every metadata and map-items load, refresh and catalog
// reload is recorded as a structured JSON event, so slow or failing sources
// can be found after the fact.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of telemetry event.
const (
	KindLoadStart     = "load_start"
	KindLoadDone      = "load_done"
	KindLoadFailed    = "load_failed"
	KindRefresh       = "refresh"
	KindCatalogLoaded = "catalog_loaded"
	KindCatalogReload = "catalog_reload"
)

// Tracks name the two load state machines of an item.
const (
	TrackMetadata = "metadata"
	TrackMapItems = "mapItems"
)

// Event represents a single telemetry record. Each event carries a timestamp,
// a kind tag, and optional context identifiers (item, track) along with
// arbitrary structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	ItemID    string    `json:"item,omitempty"`
	ItemType  string    `json:"type,omitempty"`
	Track     string    `json:"track,omitempty"`
	Duration  float64   `json:"durationMs,omitempty"`
	Error     string    `json:"error,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes telemetry events as JSONL. It is safe for concurrent use by
// multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	closer io.Closer
	enc    *json.Encoder
	mu     sync.Mutex
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{closer: f, enc: json.NewEncoder(f)}, nil
}

// NewWriterEmitter creates an Emitter writing to w. Close does not close w.
func NewWriterEmitter(w io.Writer) *Emitter {
	return &Emitter{enc: json.NewEncoder(w)}
}

// Emit writes a single event. A zero Timestamp is set to the current time.
// Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// LoadDone records the end of a load track, choosing done or failed from err.
func (e *Emitter) LoadDone(itemID, itemType, track string, started time.Time, err error) error {
	evt := Event{
		Kind:     KindLoadDone,
		ItemID:   itemID,
		ItemType: itemType,
		Track:    track,
		Duration: float64(time.Since(started).Microseconds()) / 1000,
	}
	if err != nil {
		evt.Kind = KindLoadFailed
		evt.Error = err.Error()
	}
	return e.Emit(evt)
}

// Close closes the underlying file if the emitter owns one. Calling Close on
// a nil Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.closer.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}

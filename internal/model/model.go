// Package model is the base of every catalog item. A Model owns one item's
// strata, resolves its traits through the shared stratum order and runs the
// two load tracks: metadata first, then map items. Concrete item types embed
// *Model and supply the format-specific work as Hooks.
package model

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TerriaJS/terriajs-sub017/internal/loader"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/telemetry"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// Hooks is the format-specific half of an item. Either function may be nil.
type Hooks struct {
	// Metadata fetches whatever the item needs before it can describe
	// itself, usually by loading its load strata.
	Metadata func(ctx context.Context) error
	// MapItems produces the item's map output. It only runs once metadata
	// has loaded. A warning-severity error keeps the returned items.
	MapItems func(ctx context.Context) ([]mapitem.MapItem, error)
}

// Model is the shared state and lifecycle of one catalog item. It is safe
// for concurrent use.
type Model struct {
	id     string
	typ    string
	schema *traits.Schema
	strata *strata.Set
	env    *Env
	hooks  Hooks
	logger *zap.SugaredLogger

	metadata *loader.Loader
	mapItems *loader.Loader

	mu    sync.RWMutex
	items []mapitem.MapItem
}

// New returns an idle model of the schema's type. An empty id is replaced
// by a random UUID.
func New(env *Env, schema *traits.Schema, id string, hooks Hooks) *Model {
	if id == "" {
		id = uuid.NewString()
	}
	m := &Model{
		id:     id,
		typ:    schema.TypeName(),
		schema: schema,
		strata: strata.NewSet(env.Order),
		env:    env,
		hooks:  hooks,
		logger: env.Logger.With("item", id, "type", schema.TypeName()),
	}
	m.metadata = loader.New(id+"/"+telemetry.TrackMetadata, m.runMetadata)
	m.mapItems = loader.New(id+"/"+telemetry.TrackMapItems, m.runMapItems)
	return m
}

// ID returns the item's unique id.
func (m *Model) ID() string { return m.id }

// Type returns the item's type tag.
func (m *Model) Type() string { return m.typ }

// Schema returns the item's trait schema.
func (m *Model) Schema() *traits.Schema { return m.schema }

// Strata returns the item's strata.
func (m *Model) Strata() *strata.Set { return m.strata }

// Env returns the shared environment.
func (m *Model) Env() *Env { return m.env }

// Logger returns the environment logger annotated with the item id and type.
func (m *Model) Logger() *zap.SugaredLogger { return m.logger }

// LoadMetadata runs the metadata track once. Concurrent callers share the
// in-flight run; failures are stored in the result, never panicked.
func (m *Model) LoadMetadata(ctx context.Context) loader.Result {
	return m.metadata.Load(ctx)
}

// LoadMapItems loads metadata and then map items. When metadata fails, the
// map-items track fails with the same error without calling the hook.
func (m *Model) LoadMapItems(ctx context.Context) loader.Result {
	return m.mapItems.Load(ctx)
}

// IsLoadingMetadata reports whether the metadata track is in flight.
func (m *Model) IsLoadingMetadata() bool { return m.metadata.IsLoading() }

// IsLoadingMapItems reports whether the map-items track is in flight.
func (m *Model) IsLoadingMapItems() bool { return m.mapItems.IsLoading() }

// MetadataResult returns the outcome of the last metadata run.
func (m *Model) MetadataResult() loader.Result { return m.metadata.Result() }

// MapItemsResult returns the outcome of the last map-items run.
func (m *Model) MapItemsResult() loader.Result { return m.mapItems.Result() }

// MapItems returns the items produced by the last map-items run.
func (m *Model) MapItems() []mapitem.MapItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.items)
}

// Invalidate returns both tracks to idle so the next load runs again. Map
// items stay readable until the next run replaces them.
func (m *Model) Invalidate() {
	m.metadata.Invalidate()
	m.mapItems.Invalidate()
}

// InvalidateMapItems returns only the map-items track to idle.
func (m *Model) InvalidateMapItems() { m.mapItems.Invalidate() }

func (m *Model) runMetadata(ctx context.Context) error {
	if m.hooks.Metadata == nil {
		return nil
	}
	started := m.start(telemetry.TrackMetadata)
	err := m.hooks.Metadata(ctx)
	if err != nil {
		err = loaderr.From(err, m.typ, "Failed to load metadata")
	}
	m.done(telemetry.TrackMetadata, started, err)
	return err
}

func (m *Model) runMapItems(ctx context.Context) error {
	if res := m.LoadMetadata(ctx); res.Err != nil && !loaderr.IsWarning(res.Err) {
		m.setItems(nil)
		return res.Err
	}
	if m.hooks.MapItems == nil {
		return nil
	}
	started := m.start(telemetry.TrackMapItems)
	items, err := m.hooks.MapItems(ctx)
	if err != nil {
		err = loaderr.From(err, m.typ, "Failed to load map items")
		if !loaderr.IsWarning(err) {
			items = nil
		}
	}
	m.setItems(items)
	m.done(telemetry.TrackMapItems, started, err)
	return err
}

func (m *Model) setItems(items []mapitem.MapItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

func (m *Model) start(track string) time.Time {
	m.logger.Debugw("load started", "track", track)
	if err := m.env.Telemetry.Emit(telemetry.Event{
		Kind: telemetry.KindLoadStart, ItemID: m.id, ItemType: m.typ, Track: track,
	}); err != nil {
		m.logger.Warnw("telemetry emit failed", "error", err)
	}
	return time.Now()
}

func (m *Model) done(track string, started time.Time, err error) {
	switch {
	case err == nil:
		m.logger.Debugw("load finished", "track", track, "elapsed", time.Since(started))
	case loaderr.IsWarning(err):
		m.logger.Warnw("load finished with warnings", "track", track, "error", err)
	default:
		m.logger.Infow("load failed", "track", track, "error", err)
	}
	if terr := m.env.Telemetry.LoadDone(m.id, m.typ, track, started, err); terr != nil {
		m.logger.Warnw("telemetry emit failed", "error", terr)
	}
}

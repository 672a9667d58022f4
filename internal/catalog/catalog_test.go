package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TerriaJS/terriajs-sub017/internal/config"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/store"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/telemetry"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

const typeTicker = "ticker"

// tickerItem counts refreshes.
type tickerItem struct {
	*model.Model
	refreshes atomic.Int32
}

func (it *tickerItem) RefreshInterval() (time.Duration, bool) {
	secs, ok := it.Number("refreshInterval")
	if !ok || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func (it *tickerItem) Refresh(context.Context) error {
	it.refreshes.Add(1)
	return nil
}

func newTicker(env *model.Env, id string) model.Item {
	schema := traits.NewSchema(typeTicker, traits.CatalogMember(), traits.Mappable(), traits.AutoRefresh())
	return &tickerItem{Model: model.New(env, schema, id, model.Hooks{})}
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	regs := append(Builtin(config.Config{}, nil), model.Registration{Type: typeTicker, New: newTicker})
	reg, err := NewRegistry(regs...)
	require.NoError(t, err)
	env, err := reg.Env(config.Config{AppName: "Test"}, fetch.NewStub(), nil)
	require.NoError(t, err)
	return New(env, reg)
}

const transportJSON = `{"catalog": [
  {"type": "group", "name": "Transport", "members": [
    {"type": "geojson", "id": "stops", "name": "Stops", "url": "https://data.example.com/stops.geojson", "opacity": 0.5}
  ]},
  {"type": "ticker", "id": "counts", "name": "Counts", "refreshInterval": 30}
]}`

const transportTOML = `
[[catalog]]
type = "group"
name = "Transport"

[[catalog.members]]
type = "geojson"
id = "stops"
name = "Stops"
url = "https://data.example.com/stops.geojson"
opacity = 0.5

[[catalog]]
type = "ticker"
id = "counts"
name = "Counts"
refreshInterval = 30
`

const transportYAML = `
catalog:
  - type: group
    name: Transport
    members:
      - type: geojson
        id: stops
        name: Stops
        url: https://data.example.com/stops.geojson
        opacity: 0.5
  - type: ticker
    id: counts
    name: Counts
    refreshInterval: 30
`

func TestParseFormats(t *testing.T) {
	t.Parallel()
	want := []Member{
		{Type: TypeGroup, Traits: map[string]any{"name": "Transport"}, Members: []Member{{
			Type: "geojson", ID: "stops",
			Traits: map[string]any{"name": "Stops", "url": "https://data.example.com/stops.geojson", "opacity": 0.5},
		}}},
		{Type: typeTicker, ID: "counts", Traits: map[string]any{"name": "Counts", "refreshInterval": 30.0}},
	}
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{name: "json", format: FormatJSON, data: transportJSON},
		{name: "toml", format: FormatTOML, data: transportTOML},
		{name: "yaml", format: FormatYAML, data: transportYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	bare, err := Parse([]byte("- type: csv\n  id: a\n"), FormatYAML)
	require.NoError(t, err, "a bare member list is a catalog")
	assert.Equal(t, "a", bare[0].ID)

	for _, bad := range []string{`{"catalog": 3}`, `[1, 2]`, `[{"type": "group", "members": {}}]`, `{`} {
		_, err := Parse([]byte(bad), FormatJSON)
		assert.Error(t, err, bad)
	}

	f, err := FormatOf("init/catalog.YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = FormatOf("catalog.xml")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	_, err := NewRegistry(model.Registration{Type: "a"}, model.Registration{Type: "a"})
	assert.ErrorIs(t, err, ErrDuplicateType)

	reg, err := NewRegistry(Builtin(config.Config{AssImp: config.AssImpConfig{Path: "assimp"}}, nil)...)
	require.NoError(t, err)
	for _, typ := range []string{"geojson", "csv", "3d-tiles", "assimp", "czml", "kml", "bing-maps"} {
		assert.Contains(t, reg.Types(), typ)
	}
	assert.IsIncreasing(t, reg.Types())

	env, err := reg.Env(config.Config{}, fetch.NewStub(), nil)
	require.NoError(t, err)
	assert.True(t, env.Order.IsLoadStratum("tileset"))

	_, err = reg.New(env, "wms", "x")
	assert.ErrorIs(t, err, loaderr.ErrConfig)
	assert.ErrorContains(t, err, `"wms"`)
}

func TestLoadBuildsItems(t *testing.T) {
	t.Parallel()
	cat := testCatalog(t)
	ms, err := Parse([]byte(transportJSON), FormatJSON)
	require.NoError(t, err)
	ms = append(ms,
		Member{Type: "geojson", Traits: map[string]any{"name": "Anonymous"}},
		Member{Type: "wms", ID: "legacy"},
		Member{ID: "typeless"},
		Member{Type: "geojson", ID: "stops"},
	)

	err = cat.Load(ms)
	require.Error(t, err)
	assert.ErrorIs(t, err, loaderr.ErrConfig)
	var le *loaderr.Error
	require.ErrorAs(t, err, &le)
	assert.Len(t, le.Causes, 3)

	items := cat.Items()
	require.Len(t, items, 3)
	stops, ok := cat.Item("stops")
	require.True(t, ok)
	assert.Equal(t, "geojson", stops.Type())
	assert.Equal(t, 0.5, stops.Trait("opacity"))
	which, ok := stops.Strata().Which("opacity")
	require.True(t, ok)
	assert.Equal(t, strata.Definition, which)

	_, err = uuid.Parse(items[2].ID())
	assert.NoError(t, err, "members without an id get a uuid")

	root := cat.Root()
	assert.Equal(t, "Test", root.Name)
	require.Len(t, root.Groups, 1)
	assert.Equal(t, "Transport", root.Groups[0].Name)
	assert.Equal(t, []string{"stops"}, root.Groups[0].Items)
	assert.Equal(t, []string{"counts", items[2].ID()}, root.Items)
}

func TestReloadKeepsUserStratum(t *testing.T) {
	t.Parallel()
	cat := testCatalog(t)
	require.NoError(t, cat.Load([]Member{
		{Type: "geojson", ID: "stops", Traits: map[string]any{"opacity": 0.5}},
		{Type: "geojson", ID: "routes"},
	}))
	for _, id := range []string{"stops", "routes"} {
		it, _ := cat.Item(id)
		require.NoError(t, it.SetTrait(strata.User, "opacity", 0.25))
	}

	require.NoError(t, cat.Load([]Member{
		{Type: "geojson", ID: "stops", Traits: map[string]any{"opacity": 0.6}},
		{Type: typeTicker, ID: "routes"},
	}))
	stops, _ := cat.Item("stops")
	assert.Equal(t, 0.25, stops.Trait("opacity"))
	routes, _ := cat.Item("routes")
	assert.Equal(t, 0.8, routes.Trait("opacity"), "a changed type starts afresh")
}

func TestUserStrataPersist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	members := []Member{{Type: "geojson", ID: "stops"}, {Type: "geojson", ID: "routes"}}
	cat := testCatalog(t)
	require.NoError(t, cat.Load(members))
	stops, _ := cat.Item("stops")
	require.NoError(t, stops.UpdateFromJSON(strata.User, map[string]any{
		"show": false, "rectangle": map[string]any{"west": 1.0, "south": 2.0, "east": 3.0, "north": 4.0},
	}))
	require.NoError(t, cat.SaveUserStrata(ctx, st))

	fresh := testCatalog(t)
	require.NoError(t, fresh.Load(members))
	n, err := fresh.RestoreUserStrata(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	restored, _ := fresh.Item("stops")
	assert.Equal(t, false, restored.Trait("show"))
	assert.Equal(t, map[string]any{"west": 1.0, "south": 2.0, "east": 3.0, "north": 4.0}, restored.Trait("rectangle"))
}

func TestWatcherReloads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- {type: geojson, id: one}\n"), 0o644))

	cat := testCatalog(t)
	require.NoError(t, cat.LoadFile(path))
	w, err := NewWatcher(cat, path)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("- {type: geojson, id: one}\n- {type: geojson, id: two}\n"), 0o644))
	select {
	case err := <-w.Reloads:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the catalog file changed")
	}
	_, ok := cat.Item("two")
	assert.True(t, ok)
}

func TestRefresher(t *testing.T) {
	t.Parallel()
	cat := testCatalog(t)
	require.NoError(t, cat.Load([]Member{
		{Type: typeTicker, ID: "fast", Traits: map[string]any{"refreshInterval": 0.001}},
		{Type: typeTicker, ID: "off"},
		{Type: "geojson", ID: "static"},
	}))
	r := NewRefresher(cat, 20*time.Millisecond)

	fast, _ := cat.Item("fast")
	d, ok := r.Interval(fast.(model.AutoRefresher))
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, d, "intervals are clamped to the minimum")
	off, _ := cat.Item("off")
	_, ok = r.Interval(off.(model.AutoRefresher))
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	assert.Eventually(t, func() bool { return fast.(*tickerItem).refreshes.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, off.(*tickerItem).refreshes.Load())
}

func TestLoadEmitsTelemetry(t *testing.T) {
	t.Parallel()
	cat := testCatalog(t)
	var buf bytes.Buffer
	cat.Env().Telemetry = telemetry.NewWriterEmitter(&buf)

	require.Error(t, cat.Load([]Member{{Type: "geojson", ID: "a"}, {Type: "wms"}}))
	var evt telemetry.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &evt))
	assert.Equal(t, telemetry.KindCatalogLoaded, evt.Kind)
	assert.Equal(t, map[string]any{"items": 1.0}, evt.Data)
	assert.NotEmpty(t, evt.Error)
}

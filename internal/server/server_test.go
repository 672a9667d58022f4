package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TerriaJS/terriajs-sub017/internal/catalog"
	"github.com/TerriaJS/terriajs-sub017/internal/config"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/logging"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

const stopsURL = "https://data.example.com/stops.geojson"

const stops = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[151.0,-33.0]}},
 {"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Point","coordinates":[152.0,-34.0]}}
]}`

type memStore struct {
	mu    sync.Mutex
	saved map[string]map[string]any
}

func (m *memStore) SaveUserStratum(_ context.Context, id string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[id] = values
	return nil
}

func (m *memStore) LoadUserStratum(_ context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[id], nil
}

func testServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	reg, err := catalog.NewRegistry(catalog.Builtin(config.Config{}, nil)...)
	require.NoError(t, err)
	stub := fetch.NewStub().Text(stopsURL, stops).Status("https://data.example.com/missing.geojson", 500)
	env, err := reg.Env(config.Config{AppName: "Test"}, stub, nil)
	require.NoError(t, err)
	cat := catalog.New(env, reg)
	require.NoError(t, cat.Load([]catalog.Member{
		{Type: catalog.TypeGroup, Traits: map[string]any{"name": "Transport"}, Members: []catalog.Member{
			{Type: "geojson", ID: "stops", Traits: map[string]any{"name": "Stops", "url": stopsURL}},
		}},
		{Type: "csv", ID: "counts", Traits: map[string]any{"name": "Counts", "csvString": "lat,lon,count\n-33,151,4\n-34,152,9\n"}},
		{Type: "geojson", ID: "broken", Traits: map[string]any{"url": "https://data.example.com/missing.geojson"}},
	}))
	st := &memStore{saved: map[string]map[string]any{}}
	return New(cat, logging.Nop(), WithStore(st)), st
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListAndDescribe(t *testing.T) {
	t.Parallel()
	s, _ := testServer(t)

	rec := do(t, s, http.MethodGet, "/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]itemSummary](t, rec)
	require.Len(t, list, 3)
	assert.Equal(t, "Stops", list[0].Name)
	assert.Contains(t, list[1].Capabilities, model.CapTable)

	rec = do(t, s, http.MethodGet, "/items?type=csv", "")
	assert.Len(t, decode[[]itemSummary](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/items/stops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[itemDetail](t, rec)
	found := false
	for _, tv := range d.Traits {
		if tv.Name == "url" {
			found = true
			assert.Equal(t, stopsURL, tv.Value)
			assert.Equal(t, "definition", tv.Stratum)
		}
	}
	assert.True(t, found)

	rec = do(t, s, http.MethodGet, "/groups", "")
	g := decode[catalog.Group](t, rec)
	require.Len(t, g.Groups, 1)
	assert.Equal(t, []string{"stops"}, g.Groups[0].Items)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/items/nope", "").Code)
}

func TestLoadReportsErrors(t *testing.T) {
	t.Parallel()
	s, _ := testServer(t)

	rec := do(t, s, http.MethodPost, "/items/stops/load", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[loadView](t, rec)
	assert.True(t, v.Metadata.OK)
	require.NotNil(t, v.MapItems)
	assert.True(t, v.MapItems.OK)

	rec = do(t, s, http.MethodPost, "/items/broken/load", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	v = decode[loadView](t, rec)
	require.NotNil(t, v.MapItems)
	require.NotNil(t, v.MapItems.Error)
	assert.Equal(t, "network", v.MapItems.Error.Kind)
	assert.NotEmpty(t, v.MapItems.Error.Messages)

	rec = do(t, s, http.MethodPost, "/items/broken/load?mapItems=false", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMapItemsAndTiles(t *testing.T) {
	t.Parallel()
	s, _ := testServer(t)

	rec := do(t, s, http.MethodGet, "/items/stops/mapitems", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []struct {
		Kind string          `json:"kind"`
		Item json.RawMessage `json:"item"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "imagery", items[0].Kind)
	assert.Equal(t, "dataSource", items[1].Kind)

	rec = do(t, s, http.MethodGet, "/items/stops/tiles/0/0/0.mvt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mvtContentType, rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/items/stops/tiles/a/0/0.mvt", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/items/stops/tiles/1/5/0.mvt", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/items/counts/tiles/0/0/0.mvt", "").Code)
}

func TestTable(t *testing.T) {
	t.Parallel()
	s, _ := testServer(t)

	rec := do(t, s, http.MethodGet, "/items/counts/table", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[tableView](t, rec)
	assert.Equal(t, 2, v.Rows)
	require.Len(t, v.Columns, 3)
	assert.Equal(t, "latitude", v.Columns[0].Type)
	assert.Equal(t, []string{"count", "4", "9"}, v.Data[2])

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/items/stops/table", "").Code)
}

func TestPatchTraits(t *testing.T) {
	t.Parallel()
	s, st := testServer(t)

	rec := do(t, s, http.MethodPatch, "/items/stops/traits", `{"opacity": 0.3, "show": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	it, _ := s.cat.Item("stops")
	assert.Equal(t, 0.3, it.Trait("opacity"))
	assert.Equal(t, map[string]any{"opacity": 0.3, "show": false}, st.saved["stops"])

	rec = do(t, s, http.MethodPatch, "/items/stops/traits", `{"show": null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, it.Trait("show"), "null clears the user value")

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, s, http.MethodPatch, "/items/stops/traits", `{"opacity": "high"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPatch, "/items/stops/traits", `{`).Code)
}

func TestPatchTraitsMalformedBody(t *testing.T) {
	t.Parallel()
	s, st := testServer(t)
	for _, body := range []string{`{`, `{"opacity": 0.3`, `[1, 2]`, `nonsense`} {
		rec := do(t, s, http.MethodPatch, "/items/stops/traits", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, st.saved)
}

func TestPatchTraitsPartiallyInvalid(t *testing.T) {
	t.Parallel()
	s, st := testServer(t)
	it, _ := s.cat.Item("stops")

	rec := do(t, s, http.MethodPatch, "/items/stops/traits", `{"opacity": "high", "show": false}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, false, it.Trait("show"))
	assert.Equal(t, map[string]any{"show": false}, st.saved["stops"], "applied values are persisted")
}

package geojson

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFeatureCollection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		features int
		wantErr  bool
	}{
		{"feature collection", `{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"a":1}},
			{"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":null}]}`, 2, false},
		{"single feature", `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"properties":{}}`, 1, false},
		{"bare geometry", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`, 1, false},
		{"array of features and geometries", `[
			{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}},
			{"type":"Point","coordinates":[5,6]}]`, 2, false},
		{"empty collection", `{"type":"FeatureCollection","features":[]}`, 0, false},
		{"not geojson object", `{"foo":"bar"}`, 0, true},
		{"not json", `this is not json`, 0, true},
		{"array of numbers", `[1,2,3]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fc, err := FromBytes([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotGeoJSON)
				return
			}
			require.NoError(t, err)
			assert.Len(t, fc.Features, tt.features)
			for _, f := range fc.Features {
				assert.NotNil(t, f.Properties)
			}
		})
	}
}

func TestSingleFeatureKeepsCRS(t *testing.T) {
	t.Parallel()
	fc, err := FromBytes([]byte(`{"type":"Feature",
		"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3857"}},
		"geometry":{"type":"Point","coordinates":[20037508.342789244,0]},"properties":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "EPSG:3857", CRSCode(fc))

	require.NoError(t, ReprojectToGeographic(fc))
	p := fc.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, 180, p.Lon(), 1e-6)
	assert.InDelta(t, 0, p.Lat(), 1e-6)
	assert.Empty(t, CRSCode(fc))
}

func TestCRSCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		crs  map[string]any
		want string
	}{
		{map[string]any{"type": "EPSG", "properties": map[string]any{"code": 4326.0}}, "EPSG:4326"},
		{map[string]any{"type": "name", "properties": map[string]any{"name": "EPSG:900913"}}, "EPSG:900913"},
		{map[string]any{"type": "name", "properties": map[string]any{"name": "urn:ogc:def:crs:OGC:1.3:CRS84"}}, "CRS84"},
		{map[string]any{"type": "name", "properties": map[string]any{"name": "urn:ogc:def:crs:EPSG:6.6:28355"}}, "EPSG:28355"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			fc := geojson.NewFeatureCollection()
			fc.ExtraMembers = geojson.Properties{"crs": tt.crs}
			assert.Equal(t, tt.want, CRSCode(fc))
		})
	}
}

func TestReprojectUnsupported(t *testing.T) {
	t.Parallel()
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"crs": map[string]any{"type": "EPSG", "properties": map[string]any{"code": 28355.0}}}
	fc.Append(geojson.NewFeature(orb.Point{300000, 5800000}))
	assert.ErrorIs(t, ReprojectToGeographic(fc), ErrUnsupportedCRS)
}

func TestMergeIsLossless(t *testing.T) {
	t.Parallel()
	a, err := FromBytes([]byte(`{"type":"Point","coordinates":[1,1]}`))
	require.NoError(t, err)
	b, err := FromBytes([]byte(`[{"type":"Point","coordinates":[2,2]},{"type":"Point","coordinates":[3,3]}]`))
	require.NoError(t, err)

	merged := Merge(a, nil, b)
	require.Len(t, merged.Features, 3)
	AssignIDs(merged)
	for i, f := range merged.Features {
		assert.Equal(t, i, f.Properties[FeatureIDProp])
	}
}

func TestSimpleStyleThreshold(t *testing.T) {
	t.Parallel()
	build := func(styled, plain int) *geojson.FeatureCollection {
		fc := geojson.NewFeatureCollection()
		for range styled {
			f := geojson.NewFeature(orb.Point{0, 0})
			f.Properties["marker-color"] = "#ff0000"
			fc.Append(f)
		}
		for range plain {
			f := geojson.NewFeature(orb.Point{0, 0})
			f.Properties["marker-color"] = ""
			fc.Append(f)
		}
		return fc
	}

	assert.True(t, MostlySimpleStyled(build(1, 1)), "exactly half reaches the threshold")
	assert.False(t, MostlySimpleStyled(build(1, 2)))
	assert.False(t, MostlySimpleStyled(build(0, 0)))
	assert.Equal(t, 3, CountSimpleStyled(build(3, 4)))
}

func TestResolveStyle(t *testing.T) {
	t.Parallel()

	def := ResolveStyle(nil, "Rivers", false)
	assert.Equal(t, 20.0, def.MarkerSize)
	assert.Equal(t, 0.75, def.FillOpacity)
	assert.Equal(t, 2.0, def.PolylineStrokeWidth)
	assert.Equal(t, HashColor("Rivers"), def.MarkerColor)
	assert.Equal(t, ResolveStyle(nil, "Rivers", false), def, "defaults are deterministic")

	s := ResolveStyle(map[string]any{
		"marker-size":  "large",
		"stroke":       "rgb(255, 0, 0)",
		"stroke-width": 4.0,
		"fill":         "#0f0",
		"fill-opacity": 0.2,
	}, "Rivers", true)
	assert.Equal(t, 64.0, s.MarkerSize)
	assert.Equal(t, "#ff0000", s.Stroke)
	assert.Equal(t, "#00ff00", s.Fill)
	assert.Equal(t, 4.0, s.MarkerStrokeWidth)
	assert.Equal(t, 4.0, s.PolygonStrokeWidth)
	assert.Equal(t, 0.2, s.FillOpacity)
	assert.True(t, s.ClampToGround)
}

func TestMarkerSize(t *testing.T) {
	t.Parallel()
	tests := map[any]float64{"small": 24, "medium": 48, "large": 64, "20": 20, 12.7: 12}
	for in, want := range tests {
		got, ok := MarkerSize(in)
		assert.True(t, ok, "%v", in)
		assert.Equal(t, want, got, "%v", in)
	}
	_, ok := MarkerSize("huge")
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	html := Describe(map[string]any{
		"station_name": "Flinders St",
		"title":        "skipped",
		"name":         "also skipped",
		"nested":       map[string]any{"depth": 2.0},
		"empty":        nil,
	}, "name")
	assert.True(t, strings.HasPrefix(html, `<table class="cesium-infoBox-defaultTable">`))
	assert.Contains(t, html, "<tr><th>station name</th><td>Flinders St</td></tr>")
	assert.Contains(t, html, "<th>depth</th><td>2</td>")
	assert.NotContains(t, html, "skipped")
	assert.NotContains(t, html, "empty")
	assert.Empty(t, Describe(map[string]any{"title": "x"}, ""))
}

func TestDescribeFallbackValues(t *testing.T) {
	t.Parallel()
	html := Describe(map[string]any{
		"count": int64(7),
		"note":  "a <b>\nc",
		"tags":  []any{"x", 2.5},
	}, "")
	assert.Contains(t, html, "<th>count</th><td>7</td>")
	assert.Contains(t, html, "<th>note</th><td>a &lt;b&gt;\nc</td>")
	assert.Contains(t, html, "<th>tags</th><td>x, 2.5</td>")
}

func TestFilterByProperties(t *testing.T) {
	t.Parallel()
	fc, err := FromBytes([]byte(`[
		{"type":"Feature","geometry":null,"properties":{"kind":"river","order":1}},
		{"type":"Feature","geometry":null,"properties":{"kind":"lake","order":1}},
		{"type":"Feature","geometry":null,"properties":{"kind":"river","order":2}}]`))
	require.NoError(t, err)
	FilterByProperties(fc, map[string]any{"kind": "river", "order": 1.0})
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "river", fc.Features[0].Properties["kind"])
}

func TestToDataSource(t *testing.T) {
	t.Parallel()
	fc, err := FromBytes([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[144.9,-37.8]},"properties":{"name":"a","date":"2020-01-01","marker-color":"#000000"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[145.0,-37.9]},"properties":{"name":"b","date":"2020-01-02","kind":"bus"}}]}`))
	require.NoError(t, err)
	AssignIDs(fc)

	ds := ToDataSource(fc, DataSourceOptions{
		Name:         "stops",
		Style:        ResolveStyle(nil, "stops", false),
		TimeProperty: "date",
		PerPropertyStyles: []any{map[string]any{
			"properties": map[string]any{"kind": "BUS"},
			"style":      map[string]any{"marker-color": "#0000ff"},
		}},
	})
	require.Len(t, ds.Entities, 2)

	a, ok := ds.Entity("0")
	require.True(t, ok)
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, "#000000", a.Style.MarkerColor)
	require.NotNil(t, a.Position)
	assert.Equal(t, 144.9, a.Position.Longitude)
	require.NotNil(t, a.Availability)
	assert.Equal(t, 2020, a.Availability.Start.Year())
	assert.Equal(t, 2, a.Availability.Stop.Day())

	b, _ := ds.Entity("1")
	assert.Equal(t, "#0000ff", b.Style.MarkerColor, "per-property styles match case-insensitively")

	require.NotNil(t, ds.Clock)
	assert.True(t, ds.Clock.Start.Before(ds.Clock.Stop))
}

func TestVectorTiles(t *testing.T) {
	t.Parallel()
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{10, 10})
	f.Properties["name"] = "a"
	f.Properties["nested"] = map[string]any{"dropped": true}
	fc.Append(f)
	fc.Append(geojson.NewFeature(orb.Point{-120, -40}))

	vt := NewVectorTiles(fc)
	assert.Equal(t, 2, vt.FeatureCount())

	data, err := vt.Tile(0, 0, 0)
	require.NoError(t, err)
	layers, err := mvt.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, TileLayer, layers[0].Name)
	assert.Len(t, layers[0].Features, 2)

	// Only the north-east feature falls in tile 1/1/0.
	data, err = vt.Tile(1, 1, 0)
	require.NoError(t, err)
	layers, err = mvt.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, layers[0].Features, 1)
	assert.Equal(t, "a", layers[0].Features[0].Properties["name"])

	// The source collection is left in geographic coordinates.
	assert.Equal(t, orb.Point{10, 10}, fc.Features[0].Geometry)

	_, err = vt.Tile(1, 2, 0)
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	t.Parallel()
	c, a, err := ParseColor("rgba(0, 0, 255, 0.5)")
	require.NoError(t, err)
	assert.Equal(t, "#0000ff", c.Hex())
	assert.Equal(t, 0.5, a)

	_, _, err = ParseColor("chartreuse")
	assert.Error(t, err)
}

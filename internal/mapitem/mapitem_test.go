package mapitem

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateProviderTileURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    TemplateProvider
		z    int
		x, y int
		want string
	}{
		{
			name: "xyz with subdomains",
			p:    TemplateProvider{URL: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", Subdomains: []string{"a", "b", "c"}},
			z:    3, x: 1, y: 2,
			want: "https://a.tile.openstreetmap.org/3/1/2.png",
		},
		{
			name: "tms reverse y",
			p:    TemplateProvider{URL: "https://tiles.example.com/{z}/{x}/{reverseY}.png"},
			z:    2, x: 1, y: 0,
			want: "https://tiles.example.com/2/1/3.png",
		},
		{
			name: "bing quadkey",
			p:    TemplateProvider{URL: "https://ecn.t0.tiles.virtualearth.net/tiles/a{quadkey}.jpeg"},
			z:    3, x: 3, y: 5,
			want: "https://ecn.t0.tiles.virtualearth.net/tiles/a213.jpeg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.p.TileURL(tt.z, tt.x, tt.y))
		})
	}
}

func TestRectangleFromTrait(t *testing.T) {
	t.Parallel()

	r, ok := RectangleFromTrait(map[string]any{"west": 1.0, "south": 2.0, "east": 3.0, "north": 4.0})
	require.True(t, ok)
	assert.Equal(t, Rectangle{1, 2, 3, 4}, r)
	assert.Equal(t, r.Trait()["north"], 4.0)

	_, ok = RectangleFromTrait(map[string]any{"west": 1.0})
	assert.False(t, ok)
}

func TestImageryPartsJSONCarriesProviderType(t *testing.T) {
	t.Parallel()

	parts := ImageryParts{Provider: TemplateProvider{Type: "open-street-map", URL: "u"}, Show: true, Alpha: 0.42}
	b, err := json.Marshal(parts)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "open-street-map", decoded["providerType"])
	assert.Equal(t, 0.42, decoded["alpha"])
}

func TestDataSourceBoundAndAvailability(t *testing.T) {
	t.Parallel()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := &DataSource{Entities: []Entity{
		{ID: "a", Geometry: orb.LineString{{0, 0}, {2, 1}}},
		{ID: "b", Position: &Cartographic{Longitude: 5, Latitude: -1}, Availability: &TimeInterval{Start: start, Stop: start.Add(time.Hour)}},
	}}

	b, ok := ds.Bound()
	require.True(t, ok)
	assert.Equal(t, orb.Point{0, -1}, b.Min)
	assert.Equal(t, orb.Point{5, 1}, b.Max)

	e, ok := ds.Entity("b")
	require.True(t, ok)
	assert.True(t, e.AvailableAt(start.Add(30*time.Minute)))
	assert.False(t, e.AvailableAt(start.Add(2*time.Hour)))
	assert.Equal(t, KindData, ds.Kind())
}

func TestEntityJSONIncludesGeometry(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Entity{ID: "x", Geometry: orb.Point{1, 2}})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"geometry":{"type":"Point","coordinates":[1,2]}`)
}

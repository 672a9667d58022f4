package imageryitems

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TerriaJS/terriajs-sub017/internal/config"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
)

const (
	bingMetadataURL = "https://dev.virtualearth.net/REST/v1/Imagery/Metadata/Aerial"
	cartoURL        = "https://carto.example.com/api/v1/map"
	cogURL          = "https://data.example.com/dem.tif"
)

func testEnv(t *testing.T, stub *fetch.Stub) *model.Env {
	t.Helper()
	order, err := model.OrderWith(model.LoadStrata(Registrations()...)...)
	require.NoError(t, err)
	if stub == nil {
		stub = fetch.NewStub()
	}
	return model.NewEnv(config.Config{}, stub, nil, order)
}

func bingStub() *fetch.Stub {
	return fetch.NewStub().JSON(bingMetadataURL, map[string]any{
		"statusCode": 200,
		"resourceSets": []any{map[string]any{"resources": []any{map[string]any{
			"imageUrl":           "https://ecn.{subdomain}.tiles.virtualearth.net/tiles/a{quadkey}.jpeg?g=1&mkt={culture}",
			"imageUrlSubdomains": []any{"t0", "t1"},
			"imageWidth":         256,
			"imageHeight":        256,
			"zoomMin":            1,
			"zoomMax":            21,
			"imageryProviders":   []any{map[string]any{"attribution": "© Microsoft"}},
		}}}},
	})
}

func cartoStub() *fetch.Stub {
	return fetch.NewStub().JSON(cartoURL, map[string]any{
		"layergroupid": "abc",
		"cdn_url": map[string]any{"templates": map[string]any{"https": map[string]any{
			"url": "https://cdn.carto.example.com", "subdomains": []any{"a", "b"},
		}}},
		"metadata": map[string]any{"tilejson": map[string]any{"raster": map[string]any{
			"tiles": []any{cartoURL + "/abc/{z}/{x}/{y}.png"},
		}}},
	})
}

func cogStub(body []byte) *fetch.Stub {
	return fetch.NewStub().Handle(cogURL, func(req fetch.Request) (*fetch.Response, error) {
		return &fetch.Response{URL: req.URL, StatusCode: 206, Body: body}, nil
	})
}

func TestEveryItemPropagatesDisplayTraits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		build func(t *testing.T) model.Mappable
	}{
		{name: TypeBingMaps, build: func(t *testing.T) model.Mappable {
			it := NewBingMaps(testEnv(t, bingStub()), "bing")
			require.NoError(t, it.SetTrait(strata.Definition, "key", "secret"))
			return it
		}},
		{name: TypeCarto, build: func(t *testing.T) model.Mappable {
			it := NewCartoMap(testEnv(t, cartoStub()), "carto")
			require.NoError(t, it.UpdateFromJSON(strata.Definition, map[string]any{
				"url": cartoURL, "config": map[string]any{"version": "1.3.0"},
			}))
			return it
		}},
		{name: TypeMapboxStyle, build: func(t *testing.T) model.Mappable {
			it := NewMapboxStyle(testEnv(t, nil), "mapbox")
			require.NoError(t, it.UpdateFromJSON(strata.Definition, map[string]any{"styleId": "streets-v11", "accessToken": "tok"}))
			return it
		}},
		{name: TypeOpenStreetMap, build: func(t *testing.T) model.Mappable {
			return NewOpenStreetMap(testEnv(t, nil), "osm")
		}},
		{name: TypeTMS, build: func(t *testing.T) model.Mappable {
			it := NewTMS(testEnv(t, nil), "tms")
			require.NoError(t, it.SetTrait(strata.Definition, "url", "https://tiles.example.com/tms"))
			return it
		}},
		{name: TypeURLTemplate, build: func(t *testing.T) model.Mappable {
			it := NewURLTemplate(testEnv(t, nil), "template")
			require.NoError(t, it.SetTrait(strata.Definition, "url", "https://tiles.example.com/{z}/{x}/{y}.png"))
			return it
		}},
		{name: TypeCOG, build: func(t *testing.T) model.Mappable {
			it := NewCOG(testEnv(t, cogStub(geoTIFF())), "cog")
			require.NoError(t, it.SetTrait(strata.Definition, "url", cogURL))
			return it
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it := tt.build(t)
			require.NoError(t, it.SetTrait(strata.User, "opacity", 0.42))
			require.NoError(t, it.SetTrait(strata.User, "show", false))

			require.NoError(t, it.LoadMapItems(context.Background()).Err)
			items := it.MapItems()
			require.Len(t, items, 1)
			parts, ok := items[0].(mapitem.ImageryParts)
			require.True(t, ok)
			assert.Equal(t, 0.42, parts.Alpha)
			assert.False(t, parts.Show)
			assert.NotNil(t, parts.Provider)
		})
	}
}

func TestBingMapsHandshake(t *testing.T) {
	t.Parallel()
	stub := bingStub()
	it := NewBingMaps(testEnv(t, stub), "bing")
	require.NoError(t, it.UpdateFromJSON(strata.Definition, map[string]any{"key": "secret", "culture": "en-AU"}))

	require.NoError(t, it.LoadMapItems(context.Background()).Err)
	p, ok := it.MapItems()[0].(mapitem.ImageryParts).Provider.(mapitem.BingMapsProvider)
	require.True(t, ok)
	assert.Equal(t, "Aerial", p.MapStyle)
	assert.Equal(t, "https://ecn.t0.tiles.virtualearth.net/tiles/a0.jpeg?g=1&mkt=en-AU", p.TileURL(1, 0, 0))
	assert.Equal(t, 21, p.MaximumLevel)
	assert.Equal(t, "© Microsoft", p.Credit)

	which, ok := it.Strata().Which("maximumLevel")
	require.True(t, ok)
	assert.Equal(t, StratumBing, which)

	reqs := stub.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].URL, "key=secret")

	require.NoError(t, it.LoadMapItems(context.Background()).Err)
	assert.Len(t, stub.Requests(), 1, "the handshake happens once")
}

func TestBingMapsMetadataStratumRetries(t *testing.T) {
	t.Parallel()
	live := bingStub()
	var down atomic.Bool
	down.Store(true)
	stub := fetch.NewStub().Handle(bingMetadataURL, func(req fetch.Request) (*fetch.Response, error) {
		if down.Load() {
			return nil, &fetch.StatusError{URL: req.URL, StatusCode: http.StatusServiceUnavailable}
		}
		return live.Fetch(context.Background(), req)
	})
	it := NewBingMaps(testEnv(t, stub), "bing")
	require.NoError(t, it.SetTrait(strata.Definition, "key", "secret"))

	state, _ := it.MetadataStratum().State()
	assert.Equal(t, strata.NotLoaded, state)

	require.ErrorIs(t, it.LoadMapItems(context.Background()).Err, loaderr.ErrNetwork)
	state, err := it.MetadataStratum().State()
	assert.Equal(t, strata.Failed, state)
	assert.ErrorIs(t, err, loaderr.ErrNetwork)
	assert.Empty(t, it.String("imageUrl"), "a failed stratum reads as absent")

	down.Store(false)
	it.Invalidate()
	require.NoError(t, it.LoadMapItems(context.Background()).Err)
	state, err = it.MetadataStratum().State()
	assert.Equal(t, strata.Loaded, state)
	assert.NoError(t, err)
	assert.NotEmpty(t, it.String("imageUrl"))
	assert.Len(t, stub.Requests(), 2)

	it.Invalidate()
	require.NoError(t, it.LoadMapItems(context.Background()).Err)
	assert.Len(t, stub.Requests(), 2, "a loaded stratum is kept across invalidation")
}

func TestBingMapsRequiresKey(t *testing.T) {
	t.Parallel()
	stub := bingStub()
	it := NewBingMaps(testEnv(t, stub), "bing")
	res := it.LoadMapItems(context.Background())
	assert.ErrorIs(t, res.Err, loaderr.ErrConfig)
	assert.Empty(t, stub.Requests())
}

func TestCartoMapConfig(t *testing.T) {
	t.Parallel()
	stub := cartoStub()
	it := NewCartoMap(testEnv(t, stub), "carto")
	require.NoError(t, it.UpdateFromJSON(strata.Definition, map[string]any{
		"url":        cartoURL,
		"auth_token": "tok",
		"config":     map[string]any{"version": "1.3.0", "layers": []any{}},
	}))

	require.NoError(t, it.LoadMapItems(context.Background()).Err)
	p, ok := it.MapItems()[0].(mapitem.ImageryParts).Provider.(mapitem.TemplateProvider)
	require.True(t, ok)
	assert.Equal(t, cartoURL+"/abc/{z}/{x}/{y}.png", p.URL)
	assert.Equal(t, []string{"a", "b"}, p.Subdomains)

	reqs := stub.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, cartoURL+"?auth_token=tok", reqs[0].URL)
	assert.JSONEq(t, `{"version":"1.3.0","layers":[]}`, string(reqs[0].Body))

	which, ok := it.Strata().Which("tileUrl")
	require.True(t, ok)
	assert.Equal(t, StratumCarto, which)
	state, _ := it.MapConfigStratum().State()
	assert.Equal(t, strata.Loaded, state)

	require.NoError(t, it.MapConfigStratum().Reload(context.Background()))
	assert.Len(t, stub.Requests(), 2, "reload posts the map config again")
	assert.Equal(t, cartoURL+"/abc/{z}/{x}/{y}.png", it.String("tileUrl"))
}

func TestTemplateURLs(t *testing.T) {
	t.Parallel()
	osm := NewOpenStreetMap(testEnv(t, nil), "osm")
	require.NoError(t, osm.LoadMapItems(context.Background()).Err)
	p := osm.MapItems()[0].(mapitem.ImageryParts).Provider.(mapitem.TemplateProvider)
	assert.Equal(t, "https://b.tile.openstreetmap.org/3/1/0.png", p.TileURL(3, 1, 0))
	assert.Equal(t, 19, p.MaximumLevel)

	tms := NewTMS(testEnv(t, nil), "tms")
	require.NoError(t, tms.SetTrait(strata.Definition, "url", "https://tiles.example.com/tms/"))
	require.NoError(t, tms.LoadMapItems(context.Background()).Err)
	p = tms.MapItems()[0].(mapitem.ImageryParts).Provider.(mapitem.TemplateProvider)
	assert.Equal(t, "https://tiles.example.com/tms/2/1/3.png", p.TileURL(2, 1, 0), "rows count from the south")

	mb := NewMapboxStyle(testEnv(t, nil), "mapbox")
	require.NoError(t, mb.UpdateFromJSON(strata.Definition, map[string]any{
		"styleId": "streets-v11", "accessToken": "tok", "scaleFactor": true,
	}))
	require.NoError(t, mb.LoadMapItems(context.Background()).Err)
	p = mb.MapItems()[0].(mapitem.ImageryParts).Provider.(mapitem.TemplateProvider)
	assert.Equal(t, "https://api.mapbox.com/styles/v1/mapbox/streets-v11/tiles/512/4/5/6@2x?access_token=tok", p.TileURL(4, 5, 6))
	assert.Equal(t, 512, p.TileWidth)
}

func TestTemplateConfigErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		item model.Mappable
		set  map[string]any
	}{
		{name: "template without url", item: NewURLTemplate(testEnv(t, nil), "a")},
		{name: "template without placeholders", item: NewURLTemplate(testEnv(t, nil), "b"), set: map[string]any{"url": "https://tiles.example.com/static.png"}},
		{name: "tms without url", item: NewTMS(testEnv(t, nil), "c")},
		{name: "mapbox without token", item: NewMapboxStyle(testEnv(t, nil), "d"), set: map[string]any{"styleId": "streets-v11"}},
		{name: "carto without config", item: NewCartoMap(testEnv(t, nil), "e"), set: map[string]any{"url": cartoURL}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.set != nil {
				require.NoError(t, tt.item.UpdateFromJSON(strata.Definition, tt.set))
			}
			res := tt.item.LoadMapItems(context.Background())
			assert.ErrorIs(t, res.Err, loaderr.ErrConfig)
			assert.Empty(t, tt.item.MapItems())
		})
	}
}

package geojsonitems

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	gj "github.com/TerriaJS/terriajs-sub017/internal/geojson"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeSenapsLocations is the type tag of SenapsLocationsItem.
const TypeSenapsLocations = "senaps-locations"

// Messages of Senaps load failures.
const (
	senapsErrorTitle      = "Unable to retrieve Senaps locations"
	senapsMissingKey      = "Access to the Senaps API was refused. The proxy must be configured with a Senaps API key."
	senapsGeneralError    = "An error occurred while retrieving locations and streams from the Senaps API."
	senapsMissingURLError = "A base url must be set to load Senaps locations."
)

// SenapsLocationsItem shows the locations of a Senaps sensor network and
// lists the streams available at each one. The locations are rendered by a
// nested geojson item.
type SenapsLocationsItem struct {
	*model.Model

	mu     sync.RWMutex
	nested *GeoJSONItem
}

// NewSenapsLocations returns an idle senaps-locations item.
func NewSenapsLocations(env *model.Env, id string) *SenapsLocationsItem {
	it := &SenapsLocationsItem{}
	it.Model = model.New(env, schemaFor(TypeSenapsLocations, []traits.Trait{
		{Name: "locationIdFilter", Kind: traits.KindString, Doc: "Only locations whose id starts with this."},
		{Name: "streamIdFilter", Kind: traits.KindString, Doc: "Only streams whose id starts with this."},
	}), id, model.Hooks{MapItems: it.loadMapItems})
	return it
}

// URL returns the url trait, the Senaps API base.
func (it *SenapsLocationsItem) URL() string { return it.String("url") }

// GeoJSONItem returns the nested item built by the last load.
func (it *SenapsLocationsItem) GeoJSONItem() *GeoJSONItem {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.nested
}

// ReadyData returns the locations of the last load.
func (it *SenapsLocationsItem) ReadyData() *geojson.FeatureCollection {
	if n := it.GeoJSONItem(); n != nil {
		return n.ReadyData()
	}
	return nil
}

type senapsLocation struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	GeoJSON     map[string]any `json:"geojson"`
	Links       struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"_links"`
}

type senapsStreams struct {
	Embedded *struct {
		Streams []struct {
			ID string `json:"id"`
		} `json:"streams"`
	} `json:"_embedded"`
	Count int `json:"count"`
}

func (it *SenapsLocationsItem) loadMapItems(ctx context.Context) ([]mapitem.MapItem, error) {
	base := strings.TrimRight(it.URL(), "/")
	if base == "" {
		return nil, loaderr.New(loaderr.KindConfig, it.Type(), senapsErrorTitle, senapsMissingURLError)
	}
	fc, err := it.locations(ctx, base)
	if err != nil {
		msg := senapsGeneralError
		if fetch.IsStatus(err, http.StatusUnauthorized) {
			msg = senapsMissingKey
		}
		return nil, loaderr.Network(it.Type(), err, senapsErrorTitle, msg)
	}

	nested := NewGeoJSON(it.Env(), it.ID()+"/locations")
	values := map[string]any{"geoJsonData": fc, "clampToGround": true, "name": it.Name()}
	if style := it.Object("style"); style != nil {
		values["style"] = style
	}
	if err := nested.UpdateFromJSON(strata.Definition, values); err != nil {
		return nil, err
	}
	if res := nested.LoadMapItems(ctx); res.Err != nil {
		return nil, res.Err
	}
	it.mu.Lock()
	it.nested = nested
	it.mu.Unlock()

	items := nested.MapItems()
	for i, item := range items {
		switch v := item.(type) {
		case *mapitem.DataSource:
			v.Show = it.Show()
		case mapitem.ImageryParts:
			v.Show = it.Show()
			items[i] = v
		}
	}
	return items, nil
}

// locations fetches the locations and then, concurrently, the streams of
// each location.
func (it *SenapsLocationsItem) locations(ctx context.Context, base string) (*geojson.FeatureCollection, error) {
	params := map[string]string{"count": "1000", "expand": "true"}
	if f := it.String("locationIdFilter"); f != "" {
		params["id"] = f
	}
	u, err := fetch.WithQuery(base+"/locations", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Embedded struct {
			Locations []senapsLocation `json:"locations"`
		} `json:"_embedded"`
	}
	if err := fetch.DecodeJSON(ctx, it.Env().Fetcher, fetch.Get(it.Env().ProxyURL(u, "0d", it.Bool("forceProxy")), nil), &resp); err != nil {
		return nil, err
	}
	locs := resp.Embedded.Locations

	streams := make([]senapsStreams, len(locs))
	g, gctx := errgroup.WithContext(ctx)
	for i, loc := range locs {
		g.Go(func() error {
			params := map[string]string{"locationid": loc.ID}
			if f := it.String("streamIdFilter"); f != "" {
				params["id"] = f
			}
			su, err := fetch.WithQuery(base+"/streams", params)
			if err != nil {
				return err
			}
			return fetch.DecodeJSON(gctx, it.Env().Fetcher,
				fetch.Get(it.Env().ProxyURL(su, "0d", it.Bool("forceProxy")), nil), &streams[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for i, loc := range locs {
		g, err := gj.ToFeatureCollection(loc.GeoJSON)
		if err != nil || len(g.Features) == 0 {
			continue
		}
		f := geojson.NewFeature(g.Features[0].Geometry)
		f.Properties = geojson.Properties{
			"id":          loc.ID,
			"description": loc.Description,
			"endpoint":    loc.Links.Self.Href,
			"hasStreams":  nil,
			"streamIds":   []any{},
		}
		switch sd := streams[i]; {
		case sd.Count == 0:
			f.Properties["hasStreams"] = false
		case sd.Embedded != nil:
			ids := make([]any, len(sd.Embedded.Streams))
			for j, s := range sd.Embedded.Streams {
				ids[j] = s.ID
			}
			f.Properties["streamIds"] = ids
			f.Properties["hasStreams"] = true
		}
		fc.Append(f)
	}
	return fc, nil
}

var _ model.Mappable = (*SenapsLocationsItem)(nil)

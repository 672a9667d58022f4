package geojsonitems

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeSocrataMapView is the type tag of SocrataMapViewItem.
const TypeSocrataMapView = "socrata-map-view"

// socrataRowLimit caps the rows requested per child view.
const socrataRowLimit = 10000

// SocrataMapViewItem loads a Socrata map view: the view's child views are
// fetched as GeoJSON resources and merged.
type SocrataMapViewItem struct {
	Mixin
}

// NewSocrataMapView returns an idle socrata-map-view item.
func NewSocrataMapView(env *model.Env, id string) *SocrataMapViewItem {
	it := &SocrataMapViewItem{}
	it.init(env, schemaFor(TypeSocrataMapView, []traits.Trait{
		{Name: "resourceId", Kind: traits.KindString, Doc: "Id of the map view."},
	}), id, it.load, nil)
	return it
}

// URL returns the url trait, the Socrata domain.
func (it *SocrataMapViewItem) URL() string { return it.String("url") }

func (it *SocrataMapViewItem) load(ctx context.Context) ([]*geojson.FeatureCollection, error) {
	base := strings.TrimRight(it.URL(), "/")
	if base == "" {
		return nil, it.MissingTrait("url")
	}
	id := it.String("resourceId")
	if id == "" {
		return nil, it.MissingTrait("resourceId")
	}

	viewURL := base + "/views/" + url.PathEscape(id) + ".json"
	var view struct {
		ChildViews []string `json:"childViews"`
	}
	if err := fetch.DecodeJSON(ctx, it.Env().Fetcher, fetch.Get(it.ProxyURL(viewURL), nil), &view); err != nil {
		return nil, it.NetworkError(err, viewURL)
	}
	if view.ChildViews == nil {
		it.Logger().Warnw("map view has no childViews, loading nothing", "view", viewURL)
	}

	out := make([]*geojson.FeatureCollection, len(view.ChildViews))
	g, ctx := errgroup.WithContext(ctx)
	for i, child := range view.ChildViews {
		g.Go(func() error {
			u, err := fetch.WithQuery(base+"/resource/"+url.PathEscape(child)+".geojson",
				map[string]string{"$limit": strconv.Itoa(socrataRowLimit)})
			if err != nil {
				return it.ParseError(err, base, "URL")
			}
			doc, err := it.fetchJSON(ctx, u)
			if err != nil {
				return err
			}
			out[i], err = it.collection(doc, u)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

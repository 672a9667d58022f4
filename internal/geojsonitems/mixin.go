// Package geojsonitems holds the catalog items whose data is a GeoJSON
// feature collection: plain GeoJSON, JSON APIs wrapping GeoJSON, GPX, GeoRSS,
// shapefiles, GeoPackages, Carto SQL results, Socrata map views and Senaps
// locations. Every item supplies raw collections and shares the Mixin
// pipeline that turns them into map items.
package geojsonitems

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"

	gj "github.com/TerriaJS/terriajs-sub017/internal/geojson"
	"github.com/TerriaJS/terriajs-sub017/internal/czml"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// Source produces the collections of one load. Collections are reprojected
// and merged by the Mixin.
type Source func(ctx context.Context) ([]*geojson.FeatureCollection, error)

// Mixin is the GeoJSON pipeline shared by every item in this package.
type Mixin struct {
	*model.Model

	source Source

	mu    sync.RWMutex
	ready *geojson.FeatureCollection
}

// init binds the embedded model. Items call it from their constructor with
// method values of the item itself.
func (m *Mixin) init(env *model.Env, schema *traits.Schema, id string, source Source, metadata func(context.Context) error) {
	m.source = source
	m.Model = model.New(env, schema, id, model.Hooks{Metadata: metadata, MapItems: m.loadMapItems})
}

// schemaFor composes the GeoJSON item schema with item-specific sets.
func schemaFor(typeName string, extra ...[]traits.Trait) *traits.Schema {
	sets := append([][]traits.Trait{
		traits.CatalogMember(), traits.URL(), traits.Mappable(), traits.GeoJSON(),
	}, extra...)
	return traits.NewSchema(typeName, sets...)
}

// ReadyData returns the collection produced by the last successful load.
func (m *Mixin) ReadyData() *geojson.FeatureCollection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

func (m *Mixin) setReady(fc *geojson.FeatureCollection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = fc
}

func (m *Mixin) loadMapItems(ctx context.Context) ([]mapitem.MapItem, error) {
	fcs, err := m.source(ctx)
	if err != nil {
		return nil, err
	}
	for _, fc := range fcs {
		if err := gj.ReprojectToGeographic(fc); err != nil {
			return nil, m.ParseError(err, m.String("url"), "GeoJSON")
		}
	}
	fc := gj.Merge(fcs...)
	gj.FilterByProperties(fc, m.Object("filterByProperties"))
	gj.AssignIDs(fc)

	if m.UseVectorTiles() && gj.MostlySimpleStyled(fc) {
		m.Logger().Debugw("features carry simple-style properties, rendering as entities")
		if err := m.SetTrait(strata.Underride, "forceCesiumPrimitives", true); err != nil {
			return nil, err
		}
	}
	if b, ok := gj.Bound(fc); ok {
		r := mapitem.Rectangle{West: b.Min.Lon(), South: b.Min.Lat(), East: b.Max.Lon(), North: b.Max.Lat()}
		if err := m.SetTrait(strata.Underride, "rectangle", r.Trait()); err != nil {
			return nil, err
		}
	}
	m.setReady(fc)
	return m.mapItemsFor(fc)
}

// UseVectorTiles reports whether features are served as vector tiles
// rather than as one entity each. Any styling that needs per-feature
// entities forces entities.
func (m *Mixin) UseVectorTiles() bool {
	style := m.Object("style")
	return !m.Bool("forceCesiumPrimitives") &&
		m.Object("czmlTemplate") == nil &&
		style["marker-symbol"] == nil && style["marker-url"] == nil &&
		m.String("timeProperty") == "" &&
		m.String("heightProperty") == "" &&
		len(m.ObjectArray("perPropertyStyles")) == 0
}

func (m *Mixin) mapItemsFor(fc *geojson.FeatureCollection) ([]mapitem.MapItem, error) {
	name := m.Name()
	if tmpl := m.Object("czmlTemplate"); tmpl != nil {
		packets, err := czml.FromTemplate(name, tmpl, fc)
		if err != nil {
			return nil, m.ParseError(err, "", "CZML template")
		}
		ds, err := czml.ToDataSource(name, packets)
		if err != nil {
			return nil, m.ParseError(err, "", "CZML template")
		}
		ds.Show = m.Show()
		return []mapitem.MapItem{ds}, nil
	}

	style := gj.ResolveStyle(m.Object("style"), name, m.Bool("clampToGround"))
	perProperty, _ := m.Trait("perPropertyStyles").([]any)
	opts := gj.DataSourceOptions{
		Name:              name,
		Style:             style,
		TimeProperty:      m.String("timeProperty"),
		HeightProperty:    m.String("heightProperty"),
		PerPropertyStyles: perProperty,
	}

	if !m.UseVectorTiles() {
		ds := gj.ToDataSource(fc, opts)
		ds.Show = m.Show()
		return []mapitem.MapItem{ds}, nil
	}

	provider := mapitem.VectorTileProvider{
		Layer: gj.TileLayer,
		Source: gj.NewVectorTiles(fc),
		Style: mapitem.VectorStyle{
			Fill:        style.Fill,
			Stroke:      style.PolylineStroke,
			StrokeWidth: style.PolylineStrokeWidth,
			MarkerSize:  style.MarkerSize,
		},
		MaximumZoom:  gj.MaxTileZoom,
		FeatureCount: len(fc.Features),
	}
	if r, ok := m.Rectangle(); ok {
		provider.Rectangle = &r
	}
	parts := mapitem.ImageryParts{Provider: provider, Show: m.Show(), Alpha: m.Opacity()}

	opts.PickOnly = true
	pick := gj.ToDataSource(fc, opts)
	pick.Show = m.Show()
	return []mapitem.MapItem{parts, pick}, nil
}

// fetchBytes downloads u through the proxy.
func (m *Mixin) fetchBytes(ctx context.Context, u string) ([]byte, error) {
	b, err := fetch.Blob(ctx, m.Env().Fetcher, fetch.Get(m.ProxyURL(u), nil))
	if err != nil {
		return nil, m.NetworkError(err, u)
	}
	return b, nil
}

// fetchJSON downloads and decodes u through the proxy.
func (m *Mixin) fetchJSON(ctx context.Context, u string) (any, error) {
	v, err := fetch.JSON(ctx, m.Env().Fetcher, fetch.Get(m.ProxyURL(u), nil))
	if err != nil {
		return nil, m.NetworkError(err, u)
	}
	return v, nil
}

// collection normalises decoded JSON from source.
func (m *Mixin) collection(v any, source string) (*geojson.FeatureCollection, error) {
	fc, err := gj.ToFeatureCollection(v)
	if err != nil {
		return nil, m.ParseError(err, source, "GeoJSON")
	}
	return fc, nil
}

// one wraps a single collection as a Source result.
func one(fc *geojson.FeatureCollection, err error) ([]*geojson.FeatureCollection, error) {
	if err != nil {
		return nil, err
	}
	return []*geojson.FeatureCollection{fc}, nil
}

// setInfo writes info sections to stratum, skipping empty content.
func setInfo(values strata.Values, sections ...[2]string) {
	var info []any
	for _, s := range sections {
		if s[1] == "" {
			continue
		}
		info = append(info, map[string]any{"name": s[0], "content": s[1]})
	}
	if len(info) > 0 {
		values["info"] = info
	}
}

func describeCount(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

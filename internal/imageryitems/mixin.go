// Package imageryitems holds the catalog items rendered as a single tiled
// imagery layer: Bing Maps, Carto map configs, Mapbox styles, OpenStreetMap,
// TMS, URL templates and cloud-optimised GeoTIFFs.
package imageryitems

import (
	"context"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// Provider builds the imagery provider of an item. It runs after metadata
// has loaded.
type Provider func(ctx context.Context) (mapitem.ImageryProvider, error)

// Mixin wraps the provider of an item in ImageryParts.
type Mixin struct {
	*model.Model

	provider Provider
}

func (m *Mixin) init(env *model.Env, schema *traits.Schema, id string, provider Provider, metadata func(context.Context) error) {
	m.provider = provider
	m.Model = model.New(env, schema, id, model.Hooks{Metadata: metadata, MapItems: m.loadMapItems})
}

func schemaFor(typeName string, extra ...[]traits.Trait) *traits.Schema {
	sets := append([][]traits.Trait{
		traits.CatalogMember(), traits.URL(), traits.Mappable(), traits.Imagery(),
	}, extra...)
	return traits.NewSchema(typeName, sets...)
}

// URL returns the url trait.
func (m *Mixin) URL() string { return m.String("url") }

func (m *Mixin) loadMapItems(ctx context.Context) ([]mapitem.MapItem, error) {
	p, err := m.provider(ctx)
	if err != nil {
		return nil, err
	}
	m.Logger().Debugw("imagery provider ready", "provider", p.ProviderType())
	return []mapitem.MapItem{m.ImageryParts(p)}, nil
}

// template fills a template provider from the imagery traits.
func (m *Mixin) template(typ, url string) mapitem.TemplateProvider {
	p := mapitem.TemplateProvider{
		Type:         typ,
		URL:          url,
		Subdomains:   m.StringArray("subdomains"),
		MinimumLevel: m.intTrait("minimumLevel"),
		MaximumLevel: m.intTrait("maximumLevel"),
		TileWidth:    m.intTrait("tileWidth"),
		TileHeight:   m.intTrait("tileHeight"),
		Credit:       m.String("attribution"),
	}
	if r, ok := m.Rectangle(); ok {
		p.Rectangle = &r
	}
	return p
}

func (m *Mixin) intTrait(name string) int {
	n, _ := m.Number(name)
	return int(n)
}

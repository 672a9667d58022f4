package imageryitems

import (
	"context"
	"strconv"
	"strings"

	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// Type tags of the template-based items.
const (
	TypeURLTemplate   = "url-template-imagery"
	TypeOpenStreetMap = "open-street-map"
	TypeTMS           = "tms"
	TypeMapboxStyle   = "mapbox-style"
)

const (
	osmDefaultURL         = "https://{s}.tile.openstreetmap.org/"
	osmDefaultAttribution = "© OpenStreetMap contributors ODbL"
	mapboxAPI             = "https://api.mapbox.com/styles/v1/"
	mapboxAttribution     = "© Mapbox © OpenStreetMap"
)

// URLTemplateItem requests tiles from a URL template with {z}, {x}, {y}
// and {s} placeholders.
type URLTemplateItem struct {
	Mixin
}

// NewURLTemplate returns an idle url-template-imagery item.
func NewURLTemplate(env *model.Env, id string) *URLTemplateItem {
	it := &URLTemplateItem{}
	it.init(env, schemaFor(TypeURLTemplate), id, it.provider, nil)
	return it
}

func (it *URLTemplateItem) provider(context.Context) (mapitem.ImageryProvider, error) {
	if it.URL() == "" {
		return nil, it.MissingTrait("url")
	}
	for _, p := range []string{"{z}", "{x}"} {
		if !strings.Contains(it.URL(), p) {
			return nil, loaderr.New(loaderr.KindConfig, it.Type(), "Invalid URL template",
				"`url` of "+it.Name()+" has no "+p+" placeholder")
		}
	}
	return it.template(TypeURLTemplate, it.URL()), nil
}

// OpenStreetMapItem shows a Slippy-map tile server, by default
// openstreetmap.org.
type OpenStreetMapItem struct {
	Mixin
}

// NewOpenStreetMap returns an idle open-street-map item.
func NewOpenStreetMap(env *model.Env, id string) *OpenStreetMapItem {
	it := &OpenStreetMapItem{}
	it.init(env, schemaFor(TypeOpenStreetMap, []traits.Trait{
		{Name: "fileExtension", Kind: traits.KindString, Default: "png", Doc: "Extension of tile files."},
	}), id, it.provider, nil)
	it.defaults(map[string]any{
		"url":          osmDefaultURL,
		"subdomains":   []any{"a", "b", "c"},
		"maximumLevel": 19.0,
		"attribution":  osmDefaultAttribution,
	})
	return it
}

func (it *OpenStreetMapItem) provider(context.Context) (mapitem.ImageryProvider, error) {
	u := strings.TrimRight(it.URL(), "/") + "/{z}/{x}/{y}." + it.String("fileExtension")
	return it.template(TypeOpenStreetMap, u), nil
}

// TMSItem shows a Tile Map Service, whose rows count up from the south.
type TMSItem struct {
	Mixin
}

// NewTMS returns an idle tms item.
func NewTMS(env *model.Env, id string) *TMSItem {
	it := &TMSItem{}
	it.init(env, schemaFor(TypeTMS, []traits.Trait{
		{Name: "fileExtension", Kind: traits.KindString, Default: "png", Doc: "Extension of tile files."},
	}), id, it.provider, nil)
	return it
}

func (it *TMSItem) provider(context.Context) (mapitem.ImageryProvider, error) {
	if it.URL() == "" {
		return nil, it.MissingTrait("url")
	}
	u := strings.TrimRight(it.URL(), "/") + "/{z}/{x}/{reverseY}." + it.String("fileExtension")
	return it.template(TypeTMS, u), nil
}

// MapboxStyleItem shows raster tiles rendered from a Mapbox style.
type MapboxStyleItem struct {
	Mixin
}

// NewMapboxStyle returns an idle mapbox-style item.
func NewMapboxStyle(env *model.Env, id string) *MapboxStyleItem {
	it := &MapboxStyleItem{}
	it.init(env, schemaFor(TypeMapboxStyle, []traits.Trait{
		{Name: "styleId", Kind: traits.KindString, Doc: "Mapbox style id."},
		{Name: "username", Kind: traits.KindString, Default: "mapbox", Doc: "Owner of the style."},
		{Name: "accessToken", Kind: traits.KindString, Doc: "Mapbox access token."},
		{Name: "tilesize", Kind: traits.KindNumber, Default: 512.0, Doc: "Tile size in pixels, 256 or 512."},
		{Name: "scaleFactor", Kind: traits.KindBool, Default: false, Doc: "Request @2x tiles."},
	}), id, it.provider, nil)
	it.defaults(map[string]any{"attribution": mapboxAttribution, "url": mapboxAPI})
	return it
}

func (it *MapboxStyleItem) provider(context.Context) (mapitem.ImageryProvider, error) {
	for _, name := range []string{"styleId", "accessToken"} {
		if it.String(name) == "" {
			return nil, it.MissingTrait(name)
		}
	}
	size := it.intTrait("tilesize")
	scale := ""
	if it.Bool("scaleFactor") {
		scale = "@2x"
	}
	u := strings.TrimRight(it.URL(), "/") + "/" + it.String("username") + "/" + it.String("styleId") +
		"/tiles/" + strconv.Itoa(size) + "/{z}/{x}/{y}" + scale + "?access_token=" + it.String("accessToken")
	p := it.template(TypeMapboxStyle, u)
	p.TileWidth, p.TileHeight = size, size
	return p, nil
}

// defaults writes item-type defaults to the defaults stratum.
func (m *Mixin) defaults(values map[string]any) {
	if err := m.UpdateFromJSON(strata.Defaults, values); err != nil {
		m.Logger().Warnw("item defaults rejected", "error", err)
	}
}

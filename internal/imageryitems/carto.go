package imageryitems

import (
	"context"
	"strings"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeCarto is the type tag of CartoMapItem.
const TypeCarto = "carto"

// StratumCarto is the load stratum holding the instantiated map config.
const StratumCarto = "cartoMapConfig"

// CartoMapItem shows a Carto Maps API (v1) layer group. Metadata posts the
// map config and records the returned tile template.
type CartoMapItem struct {
	Mixin
	mapConfig *strata.Loadable
}

// NewCartoMap returns an idle carto item.
func NewCartoMap(env *model.Env, id string) *CartoMapItem {
	it := &CartoMapItem{}
	it.init(env, schemaFor(TypeCarto, []traits.Trait{
		{Name: "config", Kind: traits.KindAny, Doc: "Carto map config, posted to url."},
		{Name: "auth_token", Kind: traits.KindString, Doc: "Carto auth token."},
		{Name: "tileUrl", Kind: traits.KindString, Doc: "Tile template of the instantiated map."},
	}), id, it.provider, it.loadMetadata)
	it.mapConfig = it.MustAttachLoadStratum(StratumCarto, it.instantiate)
	return it
}

// MapConfigStratum returns the stratum filled by instantiating the map config.
func (it *CartoMapItem) MapConfigStratum() *strata.Loadable { return it.mapConfig }

type cartoLayerGroup struct {
	LayerGroupID string `json:"layergroupid"`
	CDNURL       struct {
		Templates struct {
			HTTPS struct {
				URL        string   `json:"url"`
				Subdomains []string `json:"subdomains"`
			} `json:"https"`
		} `json:"templates"`
	} `json:"cdn_url"`
	Metadata struct {
		TileJSON struct {
			Raster struct {
				Tiles []string `json:"tiles"`
			} `json:"raster"`
		} `json:"tilejson"`
	} `json:"metadata"`
}

func (it *CartoMapItem) loadMetadata(ctx context.Context) error {
	if it.String("tileUrl") != "" {
		return nil
	}
	if it.URL() == "" {
		return it.MissingTrait("url")
	}
	if it.Trait("config") == nil {
		return it.MissingTrait("config")
	}
	return it.mapConfig.Load(ctx)
}

func (it *CartoMapItem) instantiate(ctx context.Context) (strata.Stratum, error) {
	u := it.URL()
	if tok := it.String("auth_token"); tok != "" {
		var err error
		if u, err = fetch.WithQuery(u, map[string]string{"auth_token": tok}); err != nil {
			return nil, it.ParseError(err, it.URL(), "URL")
		}
	}
	req, err := fetch.PostJSON(it.ProxyURL(u), it.Trait("config"), nil)
	if err != nil {
		return nil, it.ParseError(err, "", "map config")
	}
	var lg cartoLayerGroup
	if err := fetch.DecodeJSON(ctx, it.Env().Fetcher, req, &lg); err != nil {
		return nil, it.NetworkError(err, it.URL())
	}

	tileURL := ""
	switch {
	case len(lg.Metadata.TileJSON.Raster.Tiles) > 0:
		tileURL = lg.Metadata.TileJSON.Raster.Tiles[0]
	case lg.LayerGroupID != "":
		tileURL = strings.TrimRight(it.URL(), "/") + "/" + lg.LayerGroupID + "/{z}/{x}/{y}.png"
	default:
		return nil, loaderr.New(loaderr.KindParse, it.Type(), "Invalid Carto map config",
			"the Carto Maps API returned neither tiles nor a layer group for "+it.Name())
	}
	v := strata.Values{"tileUrl": tileURL}
	if subs := lg.CDNURL.Templates.HTTPS.Subdomains; len(subs) > 0 {
		anys := make([]any, len(subs))
		for i, s := range subs {
			anys[i] = s
		}
		v["subdomains"] = anys
	}
	it.Logger().Debugw("carto map instantiated", "layergroup", lg.LayerGroupID)
	return v, nil
}

func (it *CartoMapItem) provider(context.Context) (mapitem.ImageryProvider, error) {
	return it.template(TypeCarto, it.String("tileUrl")), nil
}

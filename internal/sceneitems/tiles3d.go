package sceneitems

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeTiles3D is the type tag of Tiles3DItem.
const TypeTiles3D = "3d-tiles"

// StratumTileset is the load stratum holding values declared by the
// tileset itself, such as its default style.
const StratumTileset = "tileset"

var tilesetVersions = []string{"0.0", "1.0", "1.1"}

// Tiles3DItem shows a 3D Tiles tileset from a url or a Cesium ion asset.
// Loading map items resolves the ion endpoint, reads the tileset header and
// records the root transform, which the placement traits then replace.
type Tiles3DItem struct {
	Mixin
	tileset *strata.Loadable

	mu            sync.RWMutex
	tilesetURL    string
	accessToken   string
	rootTransform []float64
}

// NewTiles3D returns an idle 3d-tiles item.
func NewTiles3D(env *model.Env, id string) *Tiles3DItem {
	it := &Tiles3DItem{}
	it.init(env, schemaFor(TypeTiles3D, traits.Tiles3D(), []traits.Trait{
		{Name: "options", Kind: traits.KindObject, Doc: "Extra tileset construction options."},
	}), id, it.loadMapItems, nil)
	it.tileset = it.MustAttachLoadStratum(StratumTileset, it.readTileset)
	return it
}

// TilesetStratum returns the stratum holding values read from the tileset.
func (it *Tiles3DItem) TilesetStratum() *strata.Loadable { return it.tileset }

// TilesetURL returns the resolved tileset url, or the url trait before the
// first load.
func (it *Tiles3DItem) TilesetURL() string {
	it.mu.RLock()
	defer it.mu.RUnlock()
	if it.tilesetURL != "" {
		return it.tilesetURL
	}
	return it.URL()
}

type ionEndpoint struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	AccessToken string `json:"accessToken"`
}

type tilesetHeader struct {
	Asset *struct {
		Version string `json:"version"`
	} `json:"asset"`
	Extras struct {
		Style map[string]any `json:"style"`
	} `json:"extras"`
	Root struct {
		Transform []float64 `json:"transform"`
	} `json:"root"`
}

// resolve returns the tileset url and access token, asking the ion
// endpoint service when an asset id is set.
func (it *Tiles3DItem) resolve(ctx context.Context) (string, string, error) {
	assetID, isIon := it.Number("ionAssetId")
	if !isIon {
		if it.URL() == "" {
			return "", "", loaderr.New(loaderr.KindConfig, it.Type(), "Missing tileset",
				fmt.Sprintf("`url` and `ionAssetId` are not defined for %s", it.Name()))
		}
		return it.ProxyURL(it.URL()), "", nil
	}

	server := strings.TrimRight(it.String("ionServer"), "/")
	u := server + "/v1/assets/" + strconv.FormatInt(int64(assetID), 10) + "/endpoint"
	if tok := it.String("ionAccessToken"); tok != "" {
		var err error
		if u, err = fetch.WithQuery(u, map[string]string{"access_token": tok}); err != nil {
			return "", "", it.ParseError(err, server, "URL")
		}
	}
	var ep ionEndpoint
	if err := fetch.DecodeJSON(ctx, it.Env().Fetcher, fetch.Get(u, nil), &ep); err != nil {
		return "", "", it.NetworkError(err, server)
	}
	if ep.Type != "3DTILES" || ep.URL == "" {
		return "", "", loaderr.New(loaderr.KindConfig, it.Type(), "Invalid ion asset",
			fmt.Sprintf("ion asset %d of %s is %q, not a 3D tileset", int64(assetID), it.Name(), ep.Type))
	}
	it.Logger().Debugw("ion endpoint resolved", "asset", int64(assetID), "url", ep.URL)
	return ep.URL, ep.AccessToken, nil
}

func (it *Tiles3DItem) loadMapItems(ctx context.Context) ([]mapitem.MapItem, error) {
	if err := it.tileset.Reload(ctx); err != nil {
		return nil, err
	}
	it.mu.RLock()
	u, token, root := it.tilesetURL, it.accessToken, it.rootTransform
	it.mu.RUnlock()

	p := it.primitive(TypeTiles3D, u)
	p.AccessToken = token
	p.Style = it.Object("style")
	p.Shadows = it.String("shadows")
	p.MaximumScreenSpaceError, _ = it.Number("maximumScreenSpaceError")
	p.ModelMatrix = it.ModelMatrix(root)
	p.Options = it.Object("options")
	return []mapitem.MapItem{p}, nil
}

// readTileset resolves the tileset and validates its header.
func (it *Tiles3DItem) readTileset(ctx context.Context) (strata.Stratum, error) {
	u, token, err := it.resolve(ctx)
	if err != nil {
		return nil, err
	}
	var hdr map[string]string
	if token != "" {
		hdr = map[string]string{"Authorization": "Bearer " + token}
	}
	body, err := fetch.Blob(ctx, it.Env().Fetcher, fetch.Get(u, hdr))
	if err != nil {
		return nil, it.NetworkError(err, u)
	}
	var ts tilesetHeader
	if err := json.Unmarshal(body, &ts); err != nil {
		return nil, it.ParseError(err, u, "3D tileset")
	}
	if ts.Asset == nil || !slices.Contains(tilesetVersions, ts.Asset.Version) {
		version := "missing"
		if ts.Asset != nil {
			version = strconv.Quote(ts.Asset.Version)
		}
		return nil, loaderr.New(loaderr.KindParse, it.Type(), "Invalid 3D tileset",
			fmt.Sprintf("tileset of %s has version %s; 3D Tiles %s are supported", it.Name(), version, strings.Join(tilesetVersions, ", ")))
	}

	var root []float64
	if len(ts.Root.Transform) == 16 {
		root = ts.Root.Transform
	}
	it.mu.Lock()
	it.tilesetURL, it.accessToken, it.rootTransform = u, token, root
	it.mu.Unlock()

	stratum := strata.Values{}
	if ts.Extras.Style != nil {
		stratum["style"] = ts.Extras.Style
	}
	return stratum, nil
}

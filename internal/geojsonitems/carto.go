package geojsonitems

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeCartoV3 is the type tag of CartoV3Item.
const TypeCartoV3 = "carto-v3"

// CartoV3Item loads the result of a Carto Maps API v3 query or table as
// GeoJSON. Metadata resolves the list of GeoJSON URLs; map items fetch and
// merge all of them.
type CartoV3Item struct {
	Mixin

	mu          sync.RWMutex
	geoJSONURLs []string
	size        float64
}

// NewCartoV3 returns an idle carto-v3 item.
func NewCartoV3(env *model.Env, id string) *CartoV3Item {
	it := &CartoV3Item{}
	it.init(env, schemaFor(TypeCartoV3, []traits.Trait{
		{Name: "baseUrl", Kind: traits.KindString, Doc: "Carto API base URL."},
		{Name: "connectionName", Kind: traits.KindString, Doc: "Carto connection name."},
		{Name: "accessToken", Kind: traits.KindString, Doc: "Bearer token for the Carto API."},
		{Name: "cartoQuery", Kind: traits.KindString, Doc: "SQL query for the query API."},
		{Name: "cartoTableName", Kind: traits.KindString, Doc: "Table for the table API."},
		{Name: "cartoColumns", Kind: traits.KindStringArray, Doc: "Columns requested from the table API."},
		{Name: "cartoGeoColumn", Kind: traits.KindString, Doc: "Geometry column name."},
	}), id, it.load, it.loadMetadata)
	return it
}

// GeoJSONURLs returns the URLs resolved by the last metadata load.
func (it *CartoV3Item) GeoJSONURLs() []string {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return append([]string(nil), it.geoJSONURLs...)
}

// Size returns the result size reported by Carto, in bytes.
func (it *CartoV3Item) Size() float64 {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.size
}

func (it *CartoV3Item) loadMetadata(ctx context.Context) error {
	base := strings.TrimRight(it.String("baseUrl"), "/")
	if base == "" {
		return it.MissingTrait("baseUrl")
	}
	if u, err := url.Parse(base); err == nil {
		u.Path, u.RawQuery = "", ""
		base = strings.TrimRight(u.String(), "/")
	}
	conn := url.PathEscape(it.String("connectionName"))

	var req fetch.Request
	switch {
	case it.String("cartoQuery") != "":
		body := map[string]any{"q": it.String("cartoQuery")}
		if geo := it.String("cartoGeoColumn"); geo != "" {
			body["geo_column"] = geo
		}
		var err error
		req, err = fetch.PostJSON(base+"/v3/maps/"+conn+"/query", body, it.auth())
		if err != nil {
			return err
		}
	case it.String("cartoTableName") != "":
		params := map[string]string{"name": it.String("cartoTableName")}
		if cols := it.StringArray("cartoColumns"); len(cols) > 0 {
			params["columns"] = strings.Join(cols, ",")
		}
		if geo := it.String("cartoGeoColumn"); geo != "" {
			params["geo_column"] = geo
		}
		u, err := fetch.WithQuery(base+"/v3/maps/"+conn+"/table", params)
		if err != nil {
			return it.ParseError(err, base, "URL")
		}
		req = fetch.Get(u, it.auth())
	default:
		return loaderr.New(loaderr.KindConfig, it.Type(), "Invalid Carto V3 config",
			"`cartoQuery` or `cartoTableName` must be defined")
	}

	var resp struct {
		GeoJSON struct {
			URL []string `json:"url"`
		} `json:"geojson"`
		Size float64 `json:"size"`
	}
	if err := it.callAPI(ctx, req, &resp); err != nil {
		return err
	}
	if len(resp.GeoJSON.URL) == 0 {
		return loaderr.New(loaderr.KindParse, it.Type(), "Failed to load GeoJSON", "No GeoJSON found.")
	}
	it.mu.Lock()
	it.geoJSONURLs, it.size = resp.GeoJSON.URL, resp.Size
	it.mu.Unlock()
	return nil
}

func (it *CartoV3Item) load(ctx context.Context) ([]*geojson.FeatureCollection, error) {
	urls := it.GeoJSONURLs()
	if len(urls) == 0 {
		return nil, loaderr.New(loaderr.KindParse, it.Type(), "Failed to load GeoJSON",
			"No GeoJSON URL found for Carto table")
	}
	out := make([]*geojson.FeatureCollection, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			var doc map[string]any
			if err := it.callAPI(ctx, fetch.Get(u, it.auth()), &doc); err != nil {
				return err
			}
			if _, ok := doc["type"].(string); !ok {
				return loaderr.Parse(it.Type(), "Failed to load GeoJSON",
					fmt.Sprintf("Invalid response from GeoJSON URL %s", u), nil)
			}
			fc, err := it.collection(doc, u)
			out[i] = fc
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (it *CartoV3Item) auth() map[string]string {
	if tok := it.String("accessToken"); tok != "" {
		return map[string]string{"Authorization": "Bearer " + tok}
	}
	return nil
}

// callAPI decodes a Carto response into target. Error bodies carrying a
// Carto error message are reported with that message.
func (it *CartoV3Item) callAPI(ctx context.Context, req fetch.Request, target any) error {
	err := fetch.DecodeJSON(ctx, it.Env().Fetcher, req, target)
	if err == nil {
		return nil
	}
	var se *fetch.StatusError
	if errors.As(err, &se) {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(se.Body, &body) == nil && body.Error != "" {
			msg := body.Message
			if msg == "" {
				msg = body.Error
			}
			return loaderr.Network(it.Type(), err, "Error from Carto API", msg)
		}
	}
	return it.NetworkError(err, req.URL)
}

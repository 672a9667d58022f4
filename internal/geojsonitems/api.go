package geojsonitems

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeAPIGeoJSON is the type tag of APIGeoJSONItem.
const TypeAPIGeoJSON = "api-geojson"

// APIGeoJSONItem reads a GeoJSON collection embedded in a JSON API
// response. The collection is found at responseGeoJsonPath; the response's
// other scalar members are copied onto every feature.
type APIGeoJSONItem struct {
	Mixin
}

func apiRequestTraits() []traits.Trait {
	return []traits.Trait{
		{Name: "queryParameters", Kind: traits.KindObject, Doc: "Query parameters appended to the url."},
		{Name: "requestData", Kind: traits.KindObject, Doc: "Body sent with a POST request. Requests are GET when unset."},
		{Name: "postRequestDataAsFormData", Kind: traits.KindBool, Default: false, Doc: "Send requestData as a form instead of JSON."},
	}
}

// NewAPIGeoJSON returns an idle api-geojson item.
func NewAPIGeoJSON(env *model.Env, id string) *APIGeoJSONItem {
	it := &APIGeoJSONItem{}
	it.init(env, schemaFor(TypeAPIGeoJSON, apiRequestTraits(), []traits.Trait{
		{Name: "responseGeoJsonPath", Kind: traits.KindString, Doc: "Path to the GeoJSON within the response."},
	}), id, it.load, nil)
	return it
}

// URL returns the url trait.
func (it *APIGeoJSONItem) URL() string { return it.String("url") }

func (it *APIGeoJSONItem) load(ctx context.Context) ([]*geojson.FeatureCollection, error) {
	u := it.URL()
	if u == "" {
		return nil, it.MissingTrait("url")
	}
	dataPath := it.String("responseGeoJsonPath")
	if dataPath == "" {
		return nil, it.MissingTrait("responseGeoJsonPath")
	}
	req, err := apiRequest(it.Model, u)
	if err != nil {
		return nil, err
	}
	doc, err := fetch.JSON(ctx, it.Env().Fetcher, req)
	if err != nil {
		return nil, it.NetworkError(err, u)
	}
	return one(extract(&it.Mixin, doc, dataPath, u))
}

// apiRequest builds the request for an API item from its url, query
// parameters and request body traits.
func apiRequest(m *model.Model, u string) (fetch.Request, error) {
	params := make(map[string]string)
	for k, v := range m.Object("queryParameters") {
		params[k] = fmt.Sprint(v)
	}
	full, err := fetch.WithQuery(u, params)
	if err != nil {
		return fetch.Request{}, m.ParseError(err, u, "URL")
	}
	full = m.ProxyURL(full)

	body := m.Object("requestData")
	switch {
	case body == nil:
		return fetch.Get(full, nil), nil
	case m.Bool("postRequestDataAsFormData"):
		return fetch.PostForm(full, body, nil), nil
	default:
		req, err := fetch.PostJSON(full, body, nil)
		if err != nil {
			return fetch.Request{}, m.ParseError(err, "", "request data")
		}
		return req, nil
	}
}

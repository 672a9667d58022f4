package imageryitems

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeBingMaps is the type tag of BingMapsItem.
const TypeBingMaps = "bing-maps"

// StratumBing is the load stratum holding the imagery metadata response.
const StratumBing = "bingMetadata"

const bingDefaultURL = "https://dev.virtualearth.net"

var bingMapStyles = []string{
	"Aerial", "AerialWithLabels", "AerialWithLabelsOnDemand", "Road", "RoadOnDemand",
	"CanvasDark", "CanvasLight", "CanvasGray", "OrdnanceSurvey", "CollinsBart",
}

// BingMapsItem shows Bing Maps imagery. Metadata performs the imagery
// metadata handshake, which yields the tile template and zoom bounds.
type BingMapsItem struct {
	Mixin
	metadata *strata.Loadable
}

// NewBingMaps returns an idle bing-maps item.
func NewBingMaps(env *model.Env, id string) *BingMapsItem {
	it := &BingMapsItem{}
	it.init(env, schemaFor(TypeBingMaps, []traits.Trait{
		{Name: "key", Kind: traits.KindString, Doc: "Bing Maps API key."},
		{Name: "mapStyle", Kind: traits.KindEnum, Default: "Aerial", Enum: bingMapStyles, Doc: "Bing Maps imagery set."},
		{Name: "culture", Kind: traits.KindString, Doc: "Culture code of labels, e.g. en-AU."},
		{Name: "imageUrl", Kind: traits.KindString, Doc: "Tile template returned by the metadata service."},
	}), id, it.provider, it.loadMetadata)
	it.defaults(map[string]any{"url": bingDefaultURL})
	it.metadata = it.MustAttachLoadStratum(StratumBing, it.handshake)
	return it
}

// MetadataStratum returns the stratum filled by the metadata handshake.
func (it *BingMapsItem) MetadataStratum() *strata.Loadable { return it.metadata }

type bingMetadata struct {
	StatusCode   int `json:"statusCode"`
	ResourceSets []struct {
		Resources []struct {
			ImageURL           string   `json:"imageUrl"`
			ImageURLSubdomains []string `json:"imageUrlSubdomains"`
			ImageWidth         float64  `json:"imageWidth"`
			ImageHeight        float64  `json:"imageHeight"`
			ZoomMin            float64  `json:"zoomMin"`
			ZoomMax            float64  `json:"zoomMax"`
			ImageryProviders   []struct {
				Attribution string `json:"attribution"`
			} `json:"imageryProviders"`
		} `json:"resources"`
	} `json:"resourceSets"`
}

func (it *BingMapsItem) loadMetadata(ctx context.Context) error {
	if it.String("key") == "" {
		return it.MissingTrait("key")
	}
	return it.metadata.Load(ctx)
}

func (it *BingMapsItem) handshake(ctx context.Context) (strata.Stratum, error) {
	key := it.String("key")
	u, err := fetch.WithQuery(strings.TrimRight(it.URL(), "/")+"/REST/v1/Imagery/Metadata/"+url.PathEscape(it.String("mapStyle")),
		map[string]string{"incl": "ImageryProviders", "key": key, "uriScheme": "https"})
	if err != nil {
		return nil, it.ParseError(err, it.URL(), "URL")
	}
	var md bingMetadata
	if err := fetch.DecodeJSON(ctx, it.Env().Fetcher, fetch.Get(it.ProxyURL(u), nil), &md); err != nil {
		return nil, it.NetworkError(err, it.URL())
	}
	if len(md.ResourceSets) == 0 || len(md.ResourceSets[0].Resources) == 0 || md.ResourceSets[0].Resources[0].ImageURL == "" {
		return nil, loaderr.New(loaderr.KindParse, it.Type(), "Invalid Bing Maps metadata",
			fmt.Sprintf("the Bing Maps metadata service returned no imagery for %s (status %d)", it.String("mapStyle"), md.StatusCode))
	}
	res := md.ResourceSets[0].Resources[0]

	var credits []string
	for _, p := range res.ImageryProviders {
		if p.Attribution != "" {
			credits = append(credits, p.Attribution)
		}
	}
	subdomains := make([]any, len(res.ImageURLSubdomains))
	for i, s := range res.ImageURLSubdomains {
		subdomains[i] = s
	}
	v := strata.Values{
		"imageUrl":     res.ImageURL,
		"subdomains":   subdomains,
		"minimumLevel": res.ZoomMin,
		"maximumLevel": res.ZoomMax,
	}
	if res.ImageWidth > 0 {
		v["tileWidth"], v["tileHeight"] = res.ImageWidth, res.ImageHeight
	}
	if len(credits) > 0 {
		v["attribution"] = strings.Join(credits, ", ")
	}
	return v, nil
}

func (it *BingMapsItem) provider(context.Context) (mapitem.ImageryProvider, error) {
	culture := it.String("culture")
	tmpl := strings.NewReplacer("{subdomain}", "{s}", "{culture}", culture).Replace(it.String("imageUrl"))
	return mapitem.BingMapsProvider{
		TemplateProvider: it.template(TypeBingMaps, tmpl),
		MapStyle:         it.String("mapStyle"),
		Culture:          culture,
	}, nil
}

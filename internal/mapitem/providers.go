package mapitem

import (
	"strconv"
	"strings"
)

// ImageryProvider is the renderer-facing description of a tiled imagery
// source. Providers are plain values; rendering them is the viewer's job.
type ImageryProvider interface {
	ProviderType() string
}

// TemplateProvider requests tiles from a URL template with {z}, {x}, {y},
// {s} and optionally {reverseY} or {quadkey} placeholders.
type TemplateProvider struct {
	Type         string     `json:"type"`
	URL          string     `json:"url"`
	Subdomains   []string   `json:"subdomains,omitempty"`
	MinimumLevel int        `json:"minimumLevel"`
	MaximumLevel int        `json:"maximumLevel,omitempty"`
	TileWidth    int        `json:"tileWidth"`
	TileHeight   int        `json:"tileHeight"`
	Credit       string     `json:"credit,omitempty"`
	Rectangle    *Rectangle `json:"rectangle,omitempty"`
}

// ProviderType implements ImageryProvider.
func (p TemplateProvider) ProviderType() string {
	if p.Type == "" {
		return "url-template"
	}
	return p.Type
}

// TileURL expands the template for one tile. Subdomains rotate on x+y.
func (p TemplateProvider) TileURL(z, x, y int) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{reverseY}", strconv.Itoa((1<<uint(z))-1-y),
		"{quadkey}", Quadkey(z, x, y),
		"{s}", p.subdomain(x, y),
	)
	return r.Replace(p.URL)
}

func (p TemplateProvider) subdomain(x, y int) string {
	if len(p.Subdomains) == 0 {
		return ""
	}
	return p.Subdomains[(x+y)%len(p.Subdomains)]
}

// Quadkey encodes a tile address the way Bing Maps names its tiles.
func Quadkey(z, x, y int) string {
	var b strings.Builder
	for i := z; i > 0; i-- {
		digit := byte('0')
		mask := 1 << uint(i-1)
		if x&mask != 0 {
			digit++
		}
		if y&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}

// BingMapsProvider is a template provider resolved from the Bing Maps
// imagery metadata service.
type BingMapsProvider struct {
	TemplateProvider
	MapStyle string `json:"mapStyle"`
	Culture  string `json:"culture,omitempty"`
}

// ProviderType implements ImageryProvider.
func (BingMapsProvider) ProviderType() string { return "bing-maps" }

// TileSource produces encoded vector tiles on demand.
type TileSource interface {
	Tile(z, x, y int) ([]byte, error)
}

// VectorStyle is the paint configuration of a vector tile provider.
type VectorStyle struct {
	ColorColumn string            `json:"colorColumn,omitempty"`
	Colors      map[string]string `json:"colors,omitempty"`
	Fill        string            `json:"fill"`
	Stroke      string            `json:"stroke"`
	StrokeWidth float64           `json:"strokeWidth"`
	MarkerSize  float64           `json:"markerSize"`
}

// VectorTileProvider renders features from a tile source.
type VectorTileProvider struct {
	Layer        string      `json:"layer"`
	Source       TileSource  `json:"-"`
	Style        VectorStyle `json:"style"`
	MinimumZoom  int         `json:"minimumZoom"`
	MaximumZoom  int         `json:"maximumZoom"`
	Rectangle    *Rectangle  `json:"rectangle,omitempty"`
	Credit       string      `json:"credit,omitempty"`
	FeatureCount int         `json:"featureCount"`
}

// ProviderType implements ImageryProvider.
func (VectorTileProvider) ProviderType() string { return "vector-tiles" }

// CogProvider renders a cloud optimised GeoTIFF.
type CogProvider struct {
	URL       string     `json:"url"`
	Bands     []int      `json:"bands,omitempty"`
	Transform string     `json:"transform,omitempty"`
	Min       float64    `json:"min"`
	Max       float64    `json:"max"`
	Colors    []string   `json:"colors,omitempty"`
	NoData    *float64   `json:"noData,omitempty"`
	Rectangle *Rectangle `json:"rectangle,omitempty"`
	Credit    string     `json:"credit,omitempty"`
}

// ProviderType implements ImageryProvider.
func (CogProvider) ProviderType() string { return "cog" }

// RegionProvider renders region-mapped table data on a region layer.
type RegionProvider struct {
	RegionType string            `json:"regionType"`
	Server     string            `json:"server"`
	Layer      string            `json:"layer"`
	RegionProp string            `json:"regionProp"`
	Colors     map[string]string `json:"colors"`
	Credit     string            `json:"credit,omitempty"`
}

// ProviderType implements ImageryProvider.
func (RegionProvider) ProviderType() string { return "region" }

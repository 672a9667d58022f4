package geojson

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/paulmach/orb/geojson"
)

// SimpleStyleThreshold is the share of features carrying simple-style
// properties at or above which features are drawn as individual entities
// instead of vector tiles.
const SimpleStyleThreshold = 0.5

// SimpleStyleKeys are the feature properties that style a single feature.
var SimpleStyleKeys = []string{
	"marker-size",
	"marker-color",
	"marker-symbol",
	"marker-opacity",
	"marker-url",
	"stroke",
	"stroke-opacity",
	"stroke-width",
	"marker-stroke-width",
	"polyline-stroke-width",
	"polygon-stroke-width",
	"fill",
	"fill-opacity",
}

// CountSimpleStyled returns how many features carry at least one non-empty
// simple-style property.
func CountSimpleStyled(fc *geojson.FeatureCollection) int {
	n := 0
	for _, f := range fc.Features {
		for _, k := range SimpleStyleKeys {
			if v, ok := f.Properties[k]; ok && truthy(v) {
				n++
				break
			}
		}
	}
	return n
}

// MostlySimpleStyled reports whether the share of simple-styled features
// reaches SimpleStyleThreshold. Empty collections report false.
func MostlySimpleStyled(fc *geojson.FeatureCollection) bool {
	if len(fc.Features) == 0 {
		return false
	}
	return float64(CountSimpleStyled(fc))/float64(len(fc.Features)) >= SimpleStyleThreshold
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case float64:
		return x != 0
	case bool:
		return x
	}
	return true
}

// Style is the simple-style configuration of an item with defaults applied.
type Style struct {
	MarkerSize          float64
	MarkerColor         string
	MarkerSymbol        string
	MarkerURL           string
	MarkerOpacity       float64
	Stroke              string
	PolylineStroke      string
	StrokeOpacity       float64
	MarkerStrokeWidth   float64
	PolylineStrokeWidth float64
	PolygonStrokeWidth  float64
	Fill                string
	FillOpacity         float64
	ClampToGround       bool
}

// contrastColor is the stroke used when none is configured.
const contrastColor = "#ffffff"

// ResolveStyle applies defaults to the "style" trait of an item. Colours
// not configured are derived from the item name so that the same item always
// gets the same colour.
func ResolveStyle(style map[string]any, itemName string, clampToGround bool) Style {
	s := Style{
		MarkerSize:          20,
		MarkerColor:         HashColor(itemName),
		Stroke:              contrastColor,
		PolylineStroke:      HashColor(itemName),
		StrokeOpacity:       1,
		MarkerStrokeWidth:   1,
		PolylineStrokeWidth: 2,
		PolygonStrokeWidth:  1,
		Fill:                HashColor(itemName + " fill"),
		FillOpacity:         0.75,
		MarkerOpacity:       1,
		ClampToGround:       clampToGround,
	}
	if size, ok := MarkerSize(style["marker-size"]); ok {
		s.MarkerSize = size
	}
	s.MarkerSymbol, _ = style["marker-symbol"].(string)
	s.MarkerURL, _ = style["marker-url"].(string)
	if c, ok := cssColor(style["marker-color"]); ok {
		s.MarkerColor = c
	}
	if c, ok := cssColor(style["stroke"]); ok {
		s.Stroke, s.PolylineStroke = c, c
	}
	if c, ok := cssColor(style["fill"]); ok {
		s.Fill = c
	}
	width, hasWidth := number(style["stroke-width"])
	s.MarkerStrokeWidth = firstNumber(style["marker-stroke-width"], width, hasWidth, s.MarkerStrokeWidth)
	s.PolylineStrokeWidth = firstNumber(style["polyline-stroke-width"], width, hasWidth, s.PolylineStrokeWidth)
	s.PolygonStrokeWidth = firstNumber(style["polygon-stroke-width"], width, hasWidth, s.PolygonStrokeWidth)
	if v, ok := number(style["stroke-opacity"]); ok {
		s.StrokeOpacity = v
	}
	if v, ok := number(style["fill-opacity"]); ok {
		s.FillOpacity = v
	}
	if v, ok := number(style["marker-opacity"]); ok {
		s.MarkerOpacity = v
	}
	return s
}

func firstNumber(specific any, shared float64, hasShared bool, def float64) float64 {
	if v, ok := number(specific); ok {
		return v
	}
	if hasShared {
		return shared
	}
	return def
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// MarkerSize parses a simple-style marker-size: small, medium, large or a
// number of pixels.
func MarkerSize(v any) (float64, bool) {
	switch x := v.(type) {
	case string:
		switch x {
		case "small":
			return 24, true
		case "medium":
			return 48, true
		case "large":
			return 64, true
		}
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return float64(n), true
		}
	case float64:
		return math.Trunc(x), true
	}
	return 0, false
}

// highContrast is the palette HashColor picks from.
var highContrast = []string{
	"#e41a1c", "#377eb8", "#4daf4a", "#984ea3", "#ff7f00",
	"#a65628", "#f781bf", "#1b9e77", "#d95f02", "#7570b3",
	"#e7298a", "#66a61e", "#e6ab02", "#17becf",
}

// HashColor returns a palette colour chosen by hashing s.
func HashColor(s string) string {
	return highContrast[hashString(s)%len(highContrast)]
}

func hashString(s string) int {
	var h int32
	for _, c := range s {
		h = (h << 5) - h + int32(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 {
		return 0
	}
	return int(h)
}

// ParseColor parses a CSS hex colour ("#rgb" or "#rrggbb") or an "rgb()" /
// "rgba()" function and returns the colour with its alpha.
func ParseColor(s string) (colorful.Color, float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(s)
		return c, 1, err
	}
	var r, g, b, a float64 = 0, 0, 0, 1
	switch {
	case strings.HasPrefix(s, "rgba("):
		if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "rgba(%g,%g,%g,%g)", &r, &g, &b, &a); err != nil {
			return colorful.Color{}, 0, fmt.Errorf("geojson: parse colour %q: %w", s, err)
		}
	case strings.HasPrefix(s, "rgb("):
		if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "rgb(%g,%g,%g)", &r, &g, &b); err != nil {
			return colorful.Color{}, 0, fmt.Errorf("geojson: parse colour %q: %w", s, err)
		}
	default:
		return colorful.Color{}, 0, fmt.Errorf("geojson: unsupported colour %q", s)
	}
	return colorful.Color{R: r / 255, G: g / 255, B: b / 255}.Clamped(), a, nil
}

func cssColor(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	c, _, err := ParseColor(s)
	if err != nil {
		return "", false
	}
	return c.Hex(), true
}

// PaletteColor returns the i-th colour of the high-contrast palette, cycling
// when i runs past its end.
func PaletteColor(i int) string {
	if i < 0 {
		i = -i
	}
	return highContrast[i%len(highContrast)]
}

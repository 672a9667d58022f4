package table

import (
	"fmt"
	"maps"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/TerriaJS/terriajs-sub017/internal/geojson"
)

// ColorTraits is the colour part of a style.
type ColorTraits struct {
	Palette      string
	NullColor    string
	NumberOfBins int
	BinMaximums  []float64
	BinColors    []string
	EnumColors   map[string]string
	MinValue     *float64
	MaxValue     *float64
}

// defaultBins is the bin count used when a style names none.
const defaultBins = 7

func colorTraitsFrom(m map[string]any) ColorTraits {
	ct := ColorTraits{NumberOfBins: defaultBins}
	if m == nil {
		return ct
	}
	ct.Palette, _ = m["colorPalette"].(string)
	ct.NullColor, _ = m["nullColor"].(string)
	if n, ok := m["numberOfBins"].(float64); ok {
		ct.NumberOfBins = int(n)
	}
	for _, v := range anySlice(m["binMaximums"]) {
		if f, ok := v.(float64); ok {
			ct.BinMaximums = append(ct.BinMaximums, f)
		}
	}
	for _, v := range anySlice(m["binColors"]) {
		if s, ok := v.(string); ok {
			ct.BinColors = append(ct.BinColors, s)
		}
	}
	for _, v := range anySlice(m["enumColors"]) {
		e, ok := v.(map[string]any)
		if !ok {
			continue
		}
		val, _ := e["value"].(string)
		col, _ := e["color"].(string)
		if val != "" && col != "" {
			if ct.EnumColors == nil {
				ct.EnumColors = map[string]string{}
			}
			ct.EnumColors[val] = col
		}
	}
	if f, ok := m["minimumValue"].(float64); ok {
		ct.MinValue = &f
	}
	if f, ok := m["maximumValue"].(float64); ok {
		ct.MaxValue = &f
	}
	return ct
}

// ColorMapKind discriminates ColorMap.
type ColorMapKind string

const (
	ColorMapConstant   ColorMapKind = "constant"
	ColorMapDiscrete   ColorMapKind = "discrete"
	ColorMapEnum       ColorMapKind = "enum"
	ColorMapContinuous ColorMapKind = "continuous"
)

// Bin is one step of a discrete colour map; values up to Max get Color.
type Bin struct {
	Max   float64 `json:"max"`
	Color string  `json:"color"`
}

// ColorMap maps cell values of the colour column to CSS hex colours.
type ColorMap struct {
	Kind      ColorMapKind      `json:"kind"`
	Constant  string            `json:"constant,omitempty"`
	Bins      []Bin             `json:"bins,omitempty"`
	Enum      map[string]string `json:"enum,omitempty"`
	Min       float64           `json:"min,omitempty"`
	Max       float64           `json:"max,omitempty"`
	Palette   string            `json:"palette,omitempty"`
	NullColor string            `json:"nullColor"`
}

// palettes are the endpoints of the sequential and diverging ramps.
var palettes = map[string][]string{
	"Reds":    {"#fee5d9", "#a50f15"},
	"Blues":   {"#eff3ff", "#08519c"},
	"Greens":  {"#edf8e9", "#006d2c"},
	"Viridis": {"#440154", "#21918c", "#fde725"},
	"PuOr":    {"#2d004b", "#f7f7f7", "#7f3b08"},
}

// nullColor is used for cells that do not parse.
const nullColor = "#00000000"

// NewColorMap builds the colour map for a style. title seeds the constant
// colour when there is no colour column.
func NewColorMap(cols []Column, s Style, title string) ColorMap {
	ct := s.Color
	null := nullColor
	if ct.NullColor != "" {
		if c, _, err := geojson.ParseColor(ct.NullColor); err == nil {
			null = c.Hex()
		}
	}
	col, ok := Find(cols, s.ColorColumn)
	switch {
	case ok && col.Type == TypeScalar:
		stats := col.Numbers()
		if stats.Valid == 0 {
			break
		}
		palette := ct.Palette
		if palette == "" {
			palette = "Reds"
			if stats.Min < 0 && stats.Max > 0 {
				palette = "PuOr"
			}
		}
		maxes := binMaximums(ct, stats, len(UniqueValues(col.Values)))
		if len(maxes) > 0 {
			bins := make([]Bin, len(maxes))
			for i, m := range maxes {
				c := rampColor(palette, float64(i)/float64(max(len(maxes)-1, 1)))
				if i < len(ct.BinColors) {
					c = ct.BinColors[i]
				}
				bins[i] = Bin{Max: m, Color: c}
			}
			return ColorMap{Kind: ColorMapDiscrete, Bins: bins, Palette: palette, NullColor: null}
		}
		lo, hi := stats.Min, stats.Max
		if ct.MinValue != nil {
			lo = *ct.MinValue
		}
		if ct.MaxValue != nil {
			hi = *ct.MaxValue
		}
		return ColorMap{Kind: ColorMapContinuous, Min: lo, Max: hi, Palette: palette, NullColor: null}
	case ok && (col.Type == TypeEnum || col.Type == TypeRegion || col.Type == TypeText):
		enum := maps.Clone(ct.EnumColors)
		if len(enum) == 0 {
			enum = make(map[string]string)
			for i, v := range UniqueValues(col.Values) {
				enum[v] = geojson.PaletteColor(i)
			}
		}
		return ColorMap{Kind: ColorMapEnum, Enum: enum, NullColor: null}
	}
	constant := geojson.HashColor(title)
	switch {
	case ct.NullColor != "":
		constant = null
	case len(ct.BinColors) > 0:
		constant = ct.BinColors[0]
	}
	return ColorMap{Kind: ColorMapConstant, Constant: constant, NullColor: null}
}

// binMaximums returns explicit maximums (extended to cover the data) or
// evenly spaced ones.
func binMaximums(ct ColorTraits, stats NumberStats, unique int) []float64 {
	if ct.BinMaximums != nil {
		maxes := ct.BinMaximums
		if len(maxes) == 0 || stats.Max > maxes[len(maxes)-1] {
			maxes = append(append([]float64(nil), maxes...), stats.Max)
		}
		return maxes
	}
	n := min(unique, ct.NumberOfBins)
	if n <= 0 {
		return nil
	}
	step := (stats.Max - stats.Min) / float64(n)
	out := make([]float64, 0, n)
	next := stats.Min
	for range n - 1 {
		next += step
		out = append(out, next)
	}
	return append(out, stats.Max)
}

// rampColor samples a palette at t in [0, 1], blending in HCL space.
func rampColor(palette string, t float64) string {
	stops, ok := palettes[palette]
	if !ok {
		stops = strings.Split(palette, "-")
	}
	if len(stops) == 1 {
		return stops[0]
	}
	t = min(max(t, 0), 1)
	seg := t * float64(len(stops)-1)
	i := min(int(seg), len(stops)-2)
	a, errA := colorful.Hex(stops[i])
	b, errB := colorful.Hex(stops[i+1])
	if errA != nil || errB != nil {
		return stops[0]
	}
	return a.BlendHcl(b, seg-float64(i)).Clamped().Hex()
}

// Color returns the colour of a cell value.
func (m ColorMap) Color(value string) string {
	switch m.Kind {
	case ColorMapConstant:
		return m.Constant
	case ColorMapEnum:
		if c, ok := m.Enum[value]; ok {
			return c
		}
		return m.NullColor
	}
	stats := Numbers([]string{value})
	if stats.Valid == 0 {
		return m.NullColor
	}
	v := stats.Values[0]
	if m.Kind == ColorMapDiscrete {
		for _, b := range m.Bins {
			if v <= b.Max {
				return b.Color
			}
		}
		return m.Bins[len(m.Bins)-1].Color
	}
	if m.Max == m.Min {
		return rampColor(m.Palette, 0)
	}
	return rampColor(m.Palette, (v-m.Min)/(m.Max-m.Min))
}

// String summarises the map for logs.
func (m ColorMap) String() string {
	switch m.Kind {
	case ColorMapDiscrete:
		return fmt.Sprintf("discrete(%d bins)", len(m.Bins))
	case ColorMapEnum:
		return fmt.Sprintf("enum(%d values)", len(m.Enum))
	case ColorMapContinuous:
		return fmt.Sprintf("continuous(%g..%g %s)", m.Min, m.Max, m.Palette)
	}
	return "constant(" + m.Constant + ")"
}

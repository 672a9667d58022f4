// Package mapitem defines the normalised output every catalog item exposes to
// a map viewer: imagery layers, data sources of entities, raw column-major
// tables and 3D primitives. The viewer only reads these values; it never
// reaches back into item state.
package mapitem

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the MapItem union.
type Kind string

const (
	KindImagery   Kind = "imagery"          // ImageryParts
	KindData      Kind = "dataSource"       // DataSource
	KindTable     Kind = "tableColumnMajor" // TableColumnMajor
	KindPrimitive Kind = "primitive"        // Primitive
)

// MapItem is one element of an item's ordered map output.
type MapItem interface {
	Kind() Kind
}

// Rectangle is a geographic extent in degrees.
type Rectangle struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// RectangleFromTrait converts a rectangle trait object. It reports false when
// any of the four edges is missing.
func RectangleFromTrait(obj map[string]any) (Rectangle, bool) {
	var r Rectangle
	edges := []struct {
		key string
		dst *float64
	}{{"west", &r.West}, {"south", &r.South}, {"east", &r.East}, {"north", &r.North}}
	for _, e := range edges {
		f, ok := obj[e.key].(float64)
		if !ok {
			return Rectangle{}, false
		}
		*e.dst = f
	}
	return r, true
}

// Trait renders r as a rectangle trait value.
func (r Rectangle) Trait() map[string]any {
	return map[string]any{"west": r.West, "south": r.South, "east": r.East, "north": r.North}
}

// ImageryParts is an imagery layer together with its display state.
type ImageryParts struct {
	Provider          ImageryProvider `json:"imageryProvider"`
	Show              bool            `json:"show"`
	Alpha             float64         `json:"alpha"`
	ClippingRectangle *Rectangle      `json:"clippingRectangle,omitempty"`
}

// Kind implements MapItem.
func (ImageryParts) Kind() Kind { return KindImagery }

// MarshalJSON tags the provider with its type so consumers can dispatch.
func (p ImageryParts) MarshalJSON() ([]byte, error) {
	type alias ImageryParts
	var providerType string
	if p.Provider != nil {
		providerType = p.Provider.ProviderType()
	}
	return json.Marshal(struct {
		alias
		ProviderType string `json:"providerType"`
	}{alias(p), providerType})
}

// TableColumnMajor carries raw table data, header first in every column.
type TableColumnMajor struct {
	Columns [][]string `json:"columns"`
}

// Kind implements MapItem.
func (TableColumnMajor) Kind() Kind { return KindTable }

// Primitive is a 3D scene object such as a tileset or a glTF model.
type Primitive struct {
	Type                    string         `json:"type"`
	URL                     string         `json:"url"`
	AccessToken             string         `json:"accessToken,omitempty"`
	Show                    bool           `json:"show"`
	Style                   map[string]any `json:"style,omitempty"`
	Shadows                 string         `json:"shadows,omitempty"`
	MaximumScreenSpaceError float64        `json:"maximumScreenSpaceError,omitempty"`
	ModelMatrix             []float64      `json:"modelMatrix,omitempty"`
	Options                 map[string]any `json:"options,omitempty"`
}

// Kind implements MapItem.
func (Primitive) Kind() Kind { return KindPrimitive }

// TimeInterval is a closed availability window.
type TimeInterval struct {
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
}

// Contains reports whether t falls inside the interval.
func (ti TimeInterval) Contains(t time.Time) bool {
	return !t.Before(ti.Start) && !t.After(ti.Stop)
}

// Clock describes the animation range of a time-varying data source.
type Clock struct {
	Start      time.Time `json:"start"`
	Stop       time.Time `json:"stop"`
	Current    time.Time `json:"currentTime"`
	Multiplier float64   `json:"multiplier,omitempty"`
	ClockRange string    `json:"clockRange,omitempty"`
	ClockStep  string    `json:"clockStep,omitempty"`
}

// Envelope wraps items with their kind for transport.
func Envelope(items []MapItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{"kind": it.Kind(), "item": it})
	}
	return out
}

// Describe returns a one-line summary of an item, used in logs and CLI output.
func Describe(it MapItem) string {
	switch v := it.(type) {
	case ImageryParts:
		pt := "none"
		if v.Provider != nil {
			pt = v.Provider.ProviderType()
		}
		return fmt.Sprintf("imagery(%s show=%t alpha=%g)", pt, v.Show, v.Alpha)
	case *DataSource:
		return fmt.Sprintf("dataSource(%q entities=%d)", v.Name, len(v.Entities))
	case TableColumnMajor:
		rows := 0
		if len(v.Columns) > 0 {
			rows = len(v.Columns[0]) - 1
		}
		return fmt.Sprintf("table(columns=%d rows=%d)", len(v.Columns), rows)
	case Primitive:
		return fmt.Sprintf("primitive(%s %s)", v.Type, v.URL)
	}
	return string(it.Kind())
}

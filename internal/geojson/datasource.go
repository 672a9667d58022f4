package geojson

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
)

// DataSourceOptions controls how features become entities.
type DataSourceOptions struct {
	Name              string
	Style             Style
	NameProperty      string
	TimeProperty      string
	HeightProperty    string
	PerPropertyStyles []any
	PickOnly          bool
}

// ToDataSource builds one entity per feature. Feature simple-style
// properties override the item style, and matching per-property styles
// override both.
func ToDataSource(fc *geojson.FeatureCollection, opts DataSourceOptions) *mapitem.DataSource {
	ds := &mapitem.DataSource{Name: opts.Name, Show: true, PickOnly: opts.PickOnly}
	times := featureTimes(fc, opts.TimeProperty)

	for i, f := range fc.Features {
		props := map[string]any(f.Properties)
		e := mapitem.Entity{
			ID:          entityID(f, i),
			Name:        entityName(props, opts.NameProperty),
			Geometry:    f.Geometry,
			Properties:  props,
			Description: Describe(props, opts.NameProperty),
		}
		if p, ok := f.Geometry.(orb.Point); ok {
			e.Position = &mapitem.Cartographic{Longitude: p.Lon(), Latitude: p.Lat()}
		}
		if !opts.PickOnly {
			e.Style = featureStyle(opts.Style, props, opts.PerPropertyStyles)
			if opts.HeightProperty != "" {
				if h, ok := number(props[opts.HeightProperty]); ok {
					e.Style.ExtrudedHeight = &h
				}
			}
		}
		if iv, ok := times[i]; ok {
			e.Availability = &iv
		}
		ds.Entities = append(ds.Entities, e)
	}

	if len(times) > 0 {
		ds.Clock = clockFor(times)
	}
	return ds
}

func entityID(f *geojson.Feature, i int) string {
	if id, ok := f.Properties[FeatureIDProp]; ok {
		return fmt.Sprint(id)
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return fmt.Sprint(i)
}

func entityName(props map[string]any, nameProperty string) string {
	for _, key := range []string{nameProperty, "title", "name", "NAME", "Name"} {
		if key == "" {
			continue
		}
		if s, ok := props[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func featureStyle(base Style, props map[string]any, perProperty []any) mapitem.EntityStyle {
	overrides := map[string]any{}
	for _, k := range SimpleStyleKeys {
		if v, ok := props[k]; ok && truthy(v) {
			overrides[k] = v
		}
	}
	for _, raw := range perProperty {
		pps, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		want, _ := pps["properties"].(map[string]any)
		caseSensitive, _ := pps["caseSensitive"].(bool)
		if len(want) == 0 || !propertiesMatch(props, want, caseSensitive) {
			continue
		}
		if style, ok := pps["style"].(map[string]any); ok {
			maps.Copy(overrides, style)
		}
	}

	s := base
	if len(overrides) > 0 {
		merged := styleTrait(base)
		maps.Copy(merged, overrides)
		s = ResolveStyle(merged, "", base.ClampToGround)
	}
	return mapitem.EntityStyle{
		MarkerColor:   s.MarkerColor,
		MarkerSize:    s.MarkerSize,
		MarkerSymbol:  s.MarkerSymbol,
		MarkerURL:     s.MarkerURL,
		MarkerOpacity: s.MarkerOpacity,
		Stroke:        s.Stroke,
		StrokeWidth:   s.PolygonStrokeWidth,
		StrokeOpacity: s.StrokeOpacity,
		Fill:          s.Fill,
		FillOpacity:   s.FillOpacity,
		ClampToGround: s.ClampToGround,
	}
}

// styleTrait renders a resolved style back into simple-style keys.
func styleTrait(s Style) map[string]any {
	out := map[string]any{
		"marker-size":           s.MarkerSize,
		"marker-color":          s.MarkerColor,
		"stroke":                s.Stroke,
		"stroke-opacity":        s.StrokeOpacity,
		"marker-stroke-width":   s.MarkerStrokeWidth,
		"polyline-stroke-width": s.PolylineStrokeWidth,
		"polygon-stroke-width":  s.PolygonStrokeWidth,
		"fill":                  s.Fill,
		"fill-opacity":          s.FillOpacity,
		"marker-opacity":        s.MarkerOpacity,
	}
	if s.MarkerSymbol != "" {
		out["marker-symbol"] = s.MarkerSymbol
	}
	if s.MarkerURL != "" {
		out["marker-url"] = s.MarkerURL
	}
	return out
}

func propertiesMatch(props, want map[string]any, caseSensitive bool) bool {
	for k, w := range want {
		got := fmt.Sprint(props[k])
		exp := fmt.Sprint(w)
		if !caseSensitive {
			got, exp = strings.ToLower(got), strings.ToLower(exp)
		}
		if got != exp {
			return false
		}
	}
	return true
}

// featureTimes parses timeProperty of every feature. Each feature is
// available from its own time until the next distinct time in the data; the
// features at the latest time stay available for that instant only.
func featureTimes(fc *geojson.FeatureCollection, timeProperty string) map[int]mapitem.TimeInterval {
	if timeProperty == "" {
		return nil
	}
	parsed := make(map[int]time.Time)
	var distinct []time.Time
	seen := make(map[int64]bool)
	for i, f := range fc.Features {
		s, ok := f.Properties[timeProperty].(string)
		if !ok {
			continue
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			continue
		}
		parsed[i] = t
		if !seen[t.UnixNano()] {
			seen[t.UnixNano()] = true
			distinct = append(distinct, t)
		}
	}
	sort.Slice(distinct, func(a, b int) bool { return distinct[a].Before(distinct[b]) })

	out := make(map[int]mapitem.TimeInterval, len(parsed))
	for i, t := range parsed {
		j := sort.Search(len(distinct), func(k int) bool { return !distinct[k].Before(t) })
		stop := t
		if j+1 < len(distinct) {
			stop = distinct[j+1]
		}
		out[i] = mapitem.TimeInterval{Start: t, Stop: stop}
	}
	return out
}

func clockFor(times map[int]mapitem.TimeInterval) *mapitem.Clock {
	var c mapitem.Clock
	first := true
	for _, iv := range times {
		if first || iv.Start.Before(c.Start) {
			c.Start = iv.Start
		}
		if first || iv.Stop.After(c.Stop) {
			c.Stop = iv.Stop
		}
		first = false
	}
	c.Current = c.Start
	c.Multiplier = 1
	c.ClockRange = "LOOP_STOP"
	return &c
}

// Package czml converts CZML documents into map data sources. Only the
// parts a catalog needs are interpreted: the document clock, entity
// identity, availability, positions and simple point, polyline and polygon
// graphics. Each packet is kept verbatim on its entity for the viewer.
package czml

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/paulmach/orb"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
)

// ErrNotCZML is returned when a document is not an array of packets that
// starts with the document packet.
var ErrNotCZML = errors.New("czml: not a CZML document")

// DocumentID is the id of the packet describing the whole document.
const DocumentID = "document"

// Parse decodes CZML JSON text.
func Parse(data []byte) ([]map[string]any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCZML, err)
	}
	return Packets(raw)
}

// Packets validates a decoded document and returns its packets. A single
// packet object is accepted as a one-element document.
func Packets(v any) ([]map[string]any, error) {
	var list []any
	switch x := v.(type) {
	case []any:
		list = x
	case map[string]any:
		list = []any{x}
	case []map[string]any:
		return x, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotCZML, v)
	}
	out := make([]map[string]any, 0, len(list))
	for i, el := range list {
		p, ok := el.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: packet %d is %T", ErrNotCZML, i, el)
		}
		out = append(out, p)
	}
	if len(out) == 0 || out[0]["id"] != DocumentID {
		return nil, fmt.Errorf("%w: first packet must have id %q", ErrNotCZML, DocumentID)
	}
	return out, nil
}

// ToDataSource builds a data source from packets. Packets sharing an id are
// merged in document order, later properties winning.
func ToDataSource(name string, packets []map[string]any) (*mapitem.DataSource, error) {
	if len(packets) == 0 || packets[0]["id"] != DocumentID {
		return nil, fmt.Errorf("%w: missing document packet", ErrNotCZML)
	}
	ds := &mapitem.DataSource{Name: name, Show: true}
	doc := packets[0]
	if n, ok := doc["name"].(string); ok && name == "" {
		ds.Name = n
	}
	if clock, ok := doc["clock"].(map[string]any); ok {
		c, err := parseClock(clock)
		if err != nil {
			return nil, err
		}
		ds.Clock = c
	}

	index := make(map[string]int)
	for i, p := range packets[1:] {
		id, _ := p["id"].(string)
		if id == "" {
			id = fmt.Sprintf("packet-%d", i+1)
		}
		if j, seen := index[id]; seen {
			merged := maps.Clone(ds.Entities[j].Packet)
			maps.Copy(merged, p)
			e, err := toEntity(id, merged)
			if err != nil {
				return nil, err
			}
			ds.Entities[j] = e
			continue
		}
		e, err := toEntity(id, p)
		if err != nil {
			return nil, err
		}
		index[id] = len(ds.Entities)
		ds.Entities = append(ds.Entities, e)
	}
	return ds, nil
}

func toEntity(id string, p map[string]any) (mapitem.Entity, error) {
	e := mapitem.Entity{ID: id, Packet: p}
	e.Name, _ = p["name"].(string)
	if d, ok := p["description"].(string); ok {
		e.Description = d
	}
	if props, ok := p["properties"].(map[string]any); ok {
		e.Properties = props
	}
	if a, ok := p["availability"].(string); ok {
		iv, err := ParseInterval(a)
		if err != nil {
			return e, fmt.Errorf("czml: entity %q availability: %w", id, err)
		}
		e.Availability = &iv
	}
	if pos, ok := p["position"].(map[string]any); ok {
		if c, ok := cartographic(pos["cartographicDegrees"]); ok {
			e.Position = &c
			e.Geometry = orb.Point{c.Longitude, c.Latitude}
		}
	}
	if line, ok := p["polyline"].(map[string]any); ok {
		if ls := lineString(line["positions"]); len(ls) > 0 {
			e.Geometry = ls
		}
		if w, ok := line["width"].(float64); ok {
			e.Style.StrokeWidth = w
		}
	}
	if poly, ok := p["polygon"].(map[string]any); ok {
		if ring := lineString(poly["positions"]); len(ring) > 0 {
			r := orb.Ring(ring)
			if !r.Closed() {
				r = append(r, r[0])
			}
			e.Geometry = orb.Polygon{r}
		}
		if h, ok := poly["extrudedHeight"].(float64); ok {
			e.Style.ExtrudedHeight = &h
		}
	}
	if point, ok := p["point"].(map[string]any); ok {
		if s, ok := point["pixelSize"].(float64); ok {
			e.Style.MarkerSize = s
		}
		if c, ok := rgbaColor(point["color"]); ok {
			e.Style.MarkerColor = c
		}
	}
	return e, nil
}

// cartographic reads [lon, lat, h] or the first sample of a time-tagged
// [t, lon, lat, h, ...] list.
func cartographic(v any) (mapitem.Cartographic, bool) {
	nums, ok := floats(v)
	if !ok {
		return mapitem.Cartographic{}, false
	}
	switch {
	case len(nums) == 3:
		return mapitem.Cartographic{Longitude: nums[0], Latitude: nums[1], Height: nums[2]}, true
	case len(nums) == 2:
		return mapitem.Cartographic{Longitude: nums[0], Latitude: nums[1]}, true
	case len(nums) >= 4 && len(nums)%4 == 0:
		return mapitem.Cartographic{Longitude: nums[1], Latitude: nums[2], Height: nums[3]}, true
	}
	return mapitem.Cartographic{}, false
}

func lineString(v any) orb.LineString {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	nums, ok := floats(obj["cartographicDegrees"])
	if !ok || len(nums)%3 != 0 {
		return nil
	}
	ls := make(orb.LineString, 0, len(nums)/3)
	for i := 0; i+2 < len(nums); i += 3 {
		ls = append(ls, orb.Point{nums[i], nums[i+1]})
	}
	return ls
}

func floats(v any) ([]float64, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, el := range arr {
		f, ok := el.(float64)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func rgbaColor(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	nums, ok := floats(obj["rgba"])
	if !ok || len(nums) != 4 {
		return "", false
	}
	return fmt.Sprintf("#%02x%02x%02x", int(nums[0]), int(nums[1]), int(nums[2])), true
}

// ParseInterval parses an ISO 8601 "start/stop" interval.
func ParseInterval(s string) (mapitem.TimeInterval, error) {
	start, stop, ok := strings.Cut(s, "/")
	if !ok {
		return mapitem.TimeInterval{}, fmt.Errorf("czml: interval %q has no '/'", s)
	}
	a, err := dateparse.ParseIn(strings.TrimSpace(start), time.UTC)
	if err != nil {
		return mapitem.TimeInterval{}, fmt.Errorf("czml: interval start %q: %w", start, err)
	}
	b, err := dateparse.ParseIn(strings.TrimSpace(stop), time.UTC)
	if err != nil {
		return mapitem.TimeInterval{}, fmt.Errorf("czml: interval stop %q: %w", stop, err)
	}
	return mapitem.TimeInterval{Start: a, Stop: b}, nil
}

func parseClock(obj map[string]any) (*mapitem.Clock, error) {
	c := &mapitem.Clock{Multiplier: 1}
	if s, ok := obj["interval"].(string); ok {
		iv, err := ParseInterval(s)
		if err != nil {
			return nil, err
		}
		c.Start, c.Stop = iv.Start, iv.Stop
		c.Current = iv.Start
	}
	if s, ok := obj["currentTime"].(string); ok {
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("czml: clock currentTime %q: %w", s, err)
		}
		c.Current = t
	}
	if m, ok := obj["multiplier"].(float64); ok {
		c.Multiplier = m
	}
	c.ClockRange, _ = obj["range"].(string)
	c.ClockStep, _ = obj["step"].(string)
	return c, nil
}

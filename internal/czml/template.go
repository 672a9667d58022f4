package czml

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FromTemplate builds a CZML document with one packet per point feature.
// Each packet is a deep copy of template with the feature position set and
// the feature properties merged over the template's properties. Features
// without point geometry are skipped.
func FromTemplate(name string, template map[string]any, fc *geojson.FeatureCollection) ([]map[string]any, error) {
	raw, err := json.Marshal(template)
	if err != nil {
		return nil, fmt.Errorf("czml: encode template: %w", err)
	}
	packets := []map[string]any{{"id": DocumentID, "name": name, "version": "1.0"}}
	for i, f := range fc.Features {
		var pts []orb.Point
		switch g := f.Geometry.(type) {
		case orb.Point:
			pts = []orb.Point{g}
		case orb.MultiPoint:
			pts = g
		default:
			continue
		}
		for j, pt := range pts {
			var packet map[string]any
			if err := json.Unmarshal(raw, &packet); err != nil {
				return nil, fmt.Errorf("czml: copy template: %w", err)
			}
			if packet == nil {
				packet = map[string]any{}
			}
			id := fmt.Sprint(i)
			if len(pts) > 1 {
				id = fmt.Sprintf("%d-%d", i, j)
			}
			packet["id"] = id
			packet["position"] = map[string]any{"cartographicDegrees": []any{pt.Lon(), pt.Lat(), 0.0}}
			props, _ := packet["properties"].(map[string]any)
			if props == nil {
				props = map[string]any{}
			}
			maps.Copy(props, f.Properties)
			packet["properties"] = props
			packets = append(packets, packet)
		}
	}
	return packets, nil
}

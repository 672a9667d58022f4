// Package geojson normalises GeoJSON-like payloads into orb feature
// collections and turns them into map items. Loaders hand it whatever JSON
// they fetched: a FeatureCollection, a single Feature, a bare geometry or an
// array of features or geometries. Anything else fails with ErrNotGeoJSON
// before it can reach the map layer.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureIDProp is the feature property holding a feature's index within
// its collection. Picked vector tile features are matched back to their
// source feature through it.
const FeatureIDProp = "_id_"

// Errors returned while normalising payloads.
var (
	// ErrNotGeoJSON is returned for payloads that are not GeoJSON.
	ErrNotGeoJSON = errors.New("geojson: not a GeoJSON object")
	// ErrUnsupportedCRS is returned when a collection names a CRS that
	// cannot be reprojected to geographic coordinates.
	ErrUnsupportedCRS = errors.New("geojson: unsupported CRS")
)

var geometryTypes = map[string]bool{
	"Point": true, "MultiPoint": true, "LineString": true, "MultiLineString": true,
	"Polygon": true, "MultiPolygon": true, "GeometryCollection": true,
}

// FromBytes decodes JSON text and normalises it with ToFeatureCollection.
func FromBytes(data []byte) (*geojson.FeatureCollection, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotGeoJSON, err)
	}
	return ToFeatureCollection(v)
}

// ToFeatureCollection converts decoded JSON into a feature collection. A
// "crs" member on a single Feature is moved to the collection so
// reprojection still sees it.
func ToFeatureCollection(v any) (*geojson.FeatureCollection, error) {
	switch x := v.(type) {
	case *geojson.FeatureCollection:
		return ensureProperties(x), nil
	case *geojson.Feature:
		fc := geojson.NewFeatureCollection()
		fc.Append(x)
		return ensureProperties(fc), nil
	case map[string]any:
		return fromObject(x)
	case []any:
		fc := geojson.NewFeatureCollection()
		for i, el := range x {
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: array element %d is %T", ErrNotGeoJSON, i, el)
			}
			sub, err := fromObject(obj)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			fc.Features = append(fc.Features, sub.Features...)
		}
		return fc, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrNotGeoJSON, v)
}

func fromObject(obj map[string]any) (*geojson.FeatureCollection, error) {
	typ, _ := obj["type"].(string)
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotGeoJSON, err)
	}
	switch {
	case typ == "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotGeoJSON, err)
		}
		return ensureProperties(fc), nil
	case typ == "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotGeoJSON, err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		if crs, ok := obj["crs"]; ok {
			fc.ExtraMembers = geojson.Properties{"crs": crs}
		}
		return ensureProperties(fc), nil
	case geometryTypes[typ]:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotGeoJSON, err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(g.Geometry()))
		if crs, ok := obj["crs"]; ok {
			fc.ExtraMembers = geojson.Properties{"crs": crs}
		}
		return fc, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrNotGeoJSON, typ)
}

func ensureProperties(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
	}
	return fc
}

// Merge concatenates the features of several collections, in order.
func Merge(fcs ...*geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, fc := range fcs {
		if fc != nil {
			out.Features = append(out.Features, fc.Features...)
		}
	}
	return out
}

// AssignIDs stores each feature's index under FeatureIDProp.
func AssignIDs(fc *geojson.FeatureCollection) {
	for i, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		f.Properties[FeatureIDProp] = i
	}
}

// AttachProperties copies props onto every feature without overwriting
// properties the feature already has.
func AttachProperties(fc *geojson.FeatureCollection, props map[string]any) {
	for _, f := range fc.Features {
		for k, v := range props {
			if _, exists := f.Properties[k]; !exists {
				f.Properties[k] = v
			}
		}
	}
}

// Bound returns the extent of all feature geometries.
func Bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b, found = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

// FilterByProperties keeps only features whose properties equal every
// key/value pair in filter. Values are compared by their JSON text, so 1 and
// 1.0 match.
func FilterByProperties(fc *geojson.FeatureCollection, filter map[string]any) {
	if len(filter) == 0 {
		return
	}
	kept := fc.Features[:0]
	for _, f := range fc.Features {
		if matches(f.Properties, filter) {
			kept = append(kept, f)
		}
	}
	fc.Features = kept
}

func matches(props geojson.Properties, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := props[k]
		if !ok {
			return false
		}
		a, _ := json.Marshal(got)
		b, _ := json.Marshal(want)
		if string(a) != string(b) {
			return false
		}
	}
	return true
}

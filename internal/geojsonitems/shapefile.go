package geojsonitems

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

// TypeShapefile is the type tag of ShapefileItem.
const TypeShapefile = "shp"

// ShapefileItem loads a zipped ESRI shapefile. The archive must hold a .shp
// and a .dbf with the same base name; a .prj in web mercator is
// reprojected.
type ShapefileItem struct {
	Mixin

	localMu sync.RWMutex
	local   []byte
}

// NewShapefile returns an idle shapefile item.
func NewShapefile(env *model.Env, id string) *ShapefileItem {
	it := &ShapefileItem{}
	it.init(env, schemaFor(TypeShapefile), id, it.load, nil)
	return it
}

// URL returns the url trait.
func (it *ShapefileItem) URL() string { return it.String("url") }

// SetLocalData replaces the url with a local zip archive.
func (it *ShapefileItem) SetLocalData(_ string, data []byte) {
	it.localMu.Lock()
	it.local = data
	it.localMu.Unlock()
	it.InvalidateMapItems()
}

func (it *ShapefileItem) load(ctx context.Context) ([]*geojson.FeatureCollection, error) {
	it.localMu.RLock()
	data := it.local
	it.localMu.RUnlock()

	u := it.URL()
	if data == nil {
		if u == "" {
			return nil, it.MissingTrait("url")
		}
		var err error
		if data, err = it.fetchBytes(ctx, u); err != nil {
			return nil, err
		}
	}
	fc, err := readShapefile(data)
	if err != nil {
		return nil, it.ParseError(err, u, "shapefile")
	}
	return one(fc, nil)
}

func readShapefile(data []byte) (*geojson.FeatureCollection, error) {
	a, err := openArchive(data)
	if err != nil {
		return nil, err
	}
	shpFile, err := a.find(".shp")
	if err != nil {
		return nil, err
	}
	dbfFile, err := a.sibling(shpFile, ".dbf")
	if err != nil {
		return nil, err
	}
	shpData, err := readFile(shpFile)
	if err != nil {
		return nil, err
	}
	dbfData, err := readFile(dbfFile)
	if err != nil {
		return nil, err
	}

	r := shp.SequentialReaderFromExt(
		io.NopCloser(bytes.NewReader(shpData)),
		io.NopCloser(bytes.NewReader(dbfData)),
	)
	defer r.Close()

	fc := geojson.NewFeatureCollection()
	fields := r.Fields()
	for r.Next() {
		_, shape := r.Shape()
		g := shapeGeometry(shape)
		if g == nil {
			continue
		}
		f := geojson.NewFeature(g)
		for i, field := range fields {
			f.Properties[field.String()] = attributeValue(field, r.Attribute(i))
		}
		fc.Append(f)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}

	if prj, err := a.sibling(shpFile, ".prj"); err == nil {
		if wkt, err := readFile(prj); err == nil {
			if crs := prjCRS(string(wkt)); crs != "" {
				fc.ExtraMembers = geojson.Properties{"crs": map[string]any{
					"type": "name", "properties": map[string]any{"name": crs},
				}}
			}
		}
	}
	return fc, nil
}

// prjCRS maps a .prj WKT to a CRS name: "" for geographic coordinates,
// EPSG:3857 for web mercator and the projection name otherwise.
func prjCRS(wkt string) string {
	wkt = strings.TrimSpace(wkt)
	switch {
	case wkt == "" || strings.HasPrefix(wkt, "GEOGCS"):
		return ""
	case strings.Contains(wkt, "Web_Mercator") || strings.Contains(wkt, "Mercator_Auxiliary_Sphere"):
		return "EPSG:3857"
	}
	if _, rest, ok := strings.Cut(wkt, `PROJCS["`); ok {
		if name, _, ok := strings.Cut(rest, `"`); ok {
			return name
		}
	}
	return "unknown"
}

func attributeValue(f shp.Field, raw string) any {
	raw = strings.TrimSpace(strings.Trim(raw, "\x00"))
	switch f.Fieldtype {
	case 'N', 'F':
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return nil
	case 'L':
		switch strings.ToUpper(raw) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
		return nil
	}
	return raw
}

func shapeGeometry(s shp.Shape) orb.Geometry {
	switch v := s.(type) {
	case *shp.Point:
		return orb.Point{v.X, v.Y}
	case *shp.PointZ:
		return orb.Point{v.X, v.Y}
	case *shp.PointM:
		return orb.Point{v.X, v.Y}
	case *shp.MultiPoint:
		return orb.MultiPoint(points(v.Points))
	case *shp.MultiPointZ:
		return orb.MultiPoint(points(v.Points))
	case *shp.PolyLine:
		return lines(v.Parts, v.Points)
	case *shp.PolyLineZ:
		return lines(v.Parts, v.Points)
	case *shp.PolyLineM:
		return lines(v.Parts, v.Points)
	case *shp.Polygon:
		return polygons(v.Parts, v.Points)
	case *shp.PolygonZ:
		return polygons(v.Parts, v.Points)
	case *shp.PolygonM:
		return polygons(v.Parts, v.Points)
	}
	return nil
}

func points(in []shp.Point) []orb.Point {
	out := make([]orb.Point, len(in))
	for i, p := range in {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

// splitParts cuts a flat point list at the part offsets.
func splitParts(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(pts) {
			continue
		}
		out = append(out, points(pts[start:end]))
	}
	return out
}

func lines(parts []int32, pts []shp.Point) orb.Geometry {
	split := splitParts(parts, pts)
	switch len(split) {
	case 0:
		return nil
	case 1:
		return orb.LineString(split[0])
	}
	mls := make(orb.MultiLineString, len(split))
	for i, p := range split {
		mls[i] = p
	}
	return mls
}

// polygons groups rings: each clockwise ring starts a polygon and the
// counter-clockwise rings after it are its holes.
func polygons(parts []int32, pts []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range splitParts(parts, pts) {
		ring := orb.Ring(p)
		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}

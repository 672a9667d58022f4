package geojson

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// TileLayer is the layer name features are encoded under.
const TileLayer = "layer"

// MaxTileZoom is the deepest zoom level VectorTiles serves.
const MaxTileZoom = 24

// VectorTiles cuts Mapbox vector tiles from a feature collection on demand.
// It implements mapitem.TileSource. The source collection is never modified.
type VectorTiles struct {
	fc     *geojson.FeatureCollection
	bounds []orb.Bound
}

// NewVectorTiles indexes fc for tiling.
func NewVectorTiles(fc *geojson.FeatureCollection) *VectorTiles {
	vt := &VectorTiles{fc: fc, bounds: make([]orb.Bound, len(fc.Features))}
	for i, f := range fc.Features {
		if f.Geometry != nil {
			vt.bounds[i] = f.Geometry.Bound()
		}
	}
	return vt
}

// FeatureCount returns the number of features that can appear in tiles.
func (vt *VectorTiles) FeatureCount() int { return len(vt.fc.Features) }

// Tile encodes the tile at z/x/y. Features are clipped to the tile with the
// usual mapbox-gl buffer; tiles without features encode an empty layer.
func (vt *VectorTiles) Tile(z, x, y int) ([]byte, error) {
	if z < 0 || z > MaxTileZoom || x < 0 || y < 0 || x >= 1<<uint(z) || y >= 1<<uint(z) {
		return nil, fmt.Errorf("geojson: tile %d/%d/%d out of range", z, x, y)
	}
	tile := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	tb := tile.Bound(0.1)

	fc := geojson.NewFeatureCollection()
	for i, f := range vt.fc.Features {
		if f.Geometry == nil || !vt.bounds[i].Intersects(tb) {
			continue
		}
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		clone.ID = f.ID
		clone.Properties = tileProperties(f.Properties)
		fc.Append(clone)
	}

	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{TileLayer: fc})
	layers.ProjectToTile(tile)
	layers.Clip(mvt.MapboxGLDefaultExtentBound)
	data, err := mvt.Marshal(layers)
	if err != nil {
		return nil, fmt.Errorf("geojson: encode tile %d/%d/%d: %w", z, x, y, err)
	}
	return data, nil
}

// tileProperties keeps only values the MVT encoder can represent.
func tileProperties(props geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		switch v.(type) {
		case string, float64, int, bool:
			out[k] = v
		}
	}
	return out
}

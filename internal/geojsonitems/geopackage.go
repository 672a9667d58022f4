package geojsonitems

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeGeoPackage is the type tag of GeoPackageItem.
const TypeGeoPackage = "geopackage"

// Errors returned while reading GeoPackages.
var (
	ErrNoFeatureTable = errors.New("geopackage: no feature table")
	ErrGeometryBlob   = errors.New("geopackage: invalid geometry blob")
)

// GeoPackageItem loads one feature table of an OGC GeoPackage. The
// database is fetched whole and read with SQLite.
type GeoPackageItem struct {
	Mixin

	localMu sync.RWMutex
	local   []byte
}

// NewGeoPackage returns an idle geopackage item.
func NewGeoPackage(env *model.Env, id string) *GeoPackageItem {
	it := &GeoPackageItem{}
	it.init(env, schemaFor(TypeGeoPackage, []traits.Trait{
		{Name: "layerName", Kind: traits.KindString, Doc: "Feature table to load. Defaults to the first one."},
	}), id, it.load, nil)
	return it
}

// URL returns the url trait.
func (it *GeoPackageItem) URL() string { return it.String("url") }

// SetLocalData replaces the url with a local GeoPackage file.
func (it *GeoPackageItem) SetLocalData(_ string, data []byte) {
	it.localMu.Lock()
	it.local = data
	it.localMu.Unlock()
	it.InvalidateMapItems()
}

func (it *GeoPackageItem) load(ctx context.Context) ([]*geojson.FeatureCollection, error) {
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
	fc, err := readGeoPackage(ctx, data, it.String("layerName"))
	if err != nil {
		return nil, it.ParseError(err, u, "GeoPackage")
	}
	return one(fc, nil)
}

// readGeoPackage copies data to a temporary file, since SQLite reads
// databases from disk, and reads one feature table from it.
func readGeoPackage(ctx context.Context, data []byte, layer string) (*geojson.FeatureCollection, error) {
	f, err := os.CreateTemp("", "terria-*.gpkg")
	if err != nil {
		return nil, fmt.Errorf("geopackage: temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("geopackage: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("geopackage: close temp file: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("geopackage: open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	table, column, err := featureTable(ctx, db, layer)
	if err != nil {
		return nil, err
	}
	return readFeatures(ctx, db, table, column)
}

// featureTable finds the table and geometry column of layer, or of the
// first feature table when layer is empty.
func featureTable(ctx context.Context, db *sql.DB, layer string) (string, string, error) {
	const q = `
SELECT c.table_name, g.column_name
FROM gpkg_contents c JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
WHERE c.data_type = 'features' AND (? = '' OR c.table_name = ? OR c.identifier = ?)
ORDER BY c.table_name
LIMIT 1`
	var table, column string
	err := db.QueryRowContext(ctx, q, layer, layer, layer).Scan(&table, &column)
	if errors.Is(err, sql.ErrNoRows) {
		if layer != "" {
			return "", "", fmt.Errorf("%w: %q", ErrNoFeatureTable, layer)
		}
		return "", "", ErrNoFeatureTable
	}
	if err != nil {
		return "", "", fmt.Errorf("geopackage: read contents: %w", err)
	}
	return table, column, nil
}

func readFeatures(ctx context.Context, db *sql.DB, table, geomColumn string) (*geojson.FeatureCollection, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("geopackage: query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("geopackage: columns of %s: %w", table, err)
	}
	fc := geojson.NewFeatureCollection()
	var srs int32
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("geopackage: scan %s: %w", table, err)
		}
		var g orb.Geometry
		props := geojson.Properties{}
		for i, c := range cols {
			if strings.EqualFold(c, geomColumn) {
				blob, _ := vals[i].([]byte)
				if srs == 0 {
					srs = srsID(blob)
				}
				if g, err = decodeGeometry(blob); err != nil {
					return nil, err
				}
				continue
			}
			props[c] = sqlValue(vals[i])
		}
		if g == nil {
			continue
		}
		f := geojson.NewFeature(g)
		f.Properties = props
		fc.Append(f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("geopackage: iterate %s: %w", table, err)
	}
	if srs > 0 && srs != 4326 {
		fc.ExtraMembers = geojson.Properties{"crs": map[string]any{
			"type": "name", "properties": map[string]any{"name": fmt.Sprintf("EPSG:%d", srs)},
		}}
	}
	return fc, nil
}

// decodeGeometry strips the GeoPackage binary header and decodes the WKB
// that follows. An empty blob is a feature without geometry.
func decodeGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, ErrGeometryBlob
	}
	flags := blob[3]
	if flags&0x10 != 0 {
		return nil, nil
	}
	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, fmt.Errorf("%w: envelope code %d", ErrGeometryBlob, (flags>>1)&0x07)
	}
	start := 8 + envelope
	if len(blob) <= start {
		return nil, fmt.Errorf("%w: truncated", ErrGeometryBlob)
	}
	g, err := wkb.Unmarshal(blob[start:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeometryBlob, err)
	}
	return g, nil
}

// srsID returns the spatial reference id stored in a geometry header.
func srsID(blob []byte) int32 {
	if len(blob) < 8 {
		return 0
	}
	if blob[3]&0x01 != 0 {
		return int32(binary.LittleEndian.Uint32(blob[4:8]))
	}
	return int32(binary.BigEndian.Uint32(blob[4:8]))
}

func sqlValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		return float64(x)
	}
	return v
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

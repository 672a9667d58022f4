package geojsonitems

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
)

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:georss="http://www.georss.org/georss">
  <title>Harbour_Events</title>
  <subtitle>Things happening on the water</subtitle>
  <updated>2020-01-02T03:04:05Z</updated>
  <category term="events"/>
  <category term="harbour"/>
  <link href="https://example.com/events"/>
  <author><name>Port Authority</name><email>info@example.com</email></author>
  <entry>
    <title>Fireworks</title>
    <id>urn:1</id>
    <summary>New year</summary>
    <georss:point>-33.85 151.21</georss:point>
  </entry>
  <entry>
    <title>Regatta</title>
    <id>urn:2</id>
    <georss:line>-33.84 151.20 -33.86 151.25</georss:line>
  </entry>
  <entry>
    <title>Exclusion zone</title>
    <id>urn:3</id>
    <georss:polygon>-33.80 151.20 -33.80 151.30 -33.90 151.30 -33.90 151.20</georss:polygon>
  </entry>
</feed>`

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0" xmlns:geo="http://www.w3.org/2003/01/geo/wgs84_pos#">
  <channel>
    <title>https://example.com/quakes_today.xml</title>
    <description>Recent earthquakes</description>
    <copyright>CC-BY</copyright>
    <item><title>M4.1</title><geo:lat>-20.5</geo:lat><geo:long>170.1</geo:long></item>
    <item><title>M3.2</title><geo:Point><geo:lat>-21.5</geo:lat><geo:long>171.1</geo:long></geo:Point></item>
    <item><title>No position</title></item>
  </channel>
</rss>`

func TestGeoRSSAtom(t *testing.T) {
	t.Parallel()
	it := NewGeoRSS(testEnv(t, nil), "events")
	require.NoError(t, it.SetTrait(strata.Definition, "geoRssString", atomFeed))

	items := load(t, it)
	assert.Len(t, items, 2, "vector tiles plus pick-only entities")
	fc := it.ReadyData()
	require.Len(t, fc.Features, 3)
	assert.IsType(t, orb.Point{}, fc.Features[0].Geometry)
	assert.IsType(t, orb.LineString{}, fc.Features[1].Geometry)
	assert.IsType(t, orb.Polygon{}, fc.Features[2].Geometry)
	assert.Equal(t, "Fireworks", fc.Features[0].Properties["title"])
	assert.Equal(t, "New year", fc.Features[0].Properties["description"])
	assert.Equal(t, orb.Point{151.21, -33.85}, fc.Features[0].Geometry)

	assert.Equal(t, "Harbour Events", it.Name())
	assert.Equal(t, StratumGeoRSS, whichStratum(t, it.Model, "name"))
	assert.Equal(t, "Port Authority", it.String("dataCustodian"))

	info := map[string]any{}
	for _, s := range it.ObjectArray("info") {
		info[s["name"].(string)] = s["content"]
	}
	assert.Equal(t, "Things happening on the water", info["Subtitle"])
	assert.Equal(t, "events, harbour", info["Category"])
	assert.Equal(t, "https://example.com/events", info["Link"])
	assert.NotContains(t, info, "Copyright Text")

	require.NoError(t, it.SetTrait(strata.Definition, "name", "Defined"))
	assert.Equal(t, "Defined", it.Name(), "definition outranks the feed")
}

func TestGeoRSSFeedStratum(t *testing.T) {
	t.Parallel()
	it := NewGeoRSS(testEnv(t, nil), "events")
	state, _ := it.FeedStratum().State()
	assert.Equal(t, strata.NotLoaded, state)

	require.NoError(t, it.SetTrait(strata.Definition, "geoRssString", atomFeed))
	load(t, it)
	state, _ = it.FeedStratum().State()
	assert.Equal(t, strata.Loaded, state)

	require.NoError(t, it.SetTrait(strata.Definition, "geoRssString", "<html><body/></html>"))
	it.InvalidateMapItems()
	assert.ErrorIs(t, it.LoadMapItems(context.Background()).Err, errInvalidFeed)
	state, err := it.FeedStratum().State()
	assert.Equal(t, strata.Loaded, state, "a failed re-read keeps the previous feed")
	assert.NoError(t, err)
	assert.Equal(t, "Harbour Events", it.Name())
}

func TestGeoRSS2(t *testing.T) {
	t.Parallel()
	const u = "https://example.com/quakes_today.xml"
	stub := fetch.NewStub().Text(u, rssFeed)
	it := NewGeoRSS(testEnv(t, stub), "quakes")
	require.NoError(t, it.SetTrait(strata.Definition, "url", u))

	load(t, it)
	fc := it.ReadyData()
	require.Len(t, fc.Features, 2, "items without a position are skipped")
	assert.Equal(t, orb.Point{171.1, -21.5}, fc.Features[1].Geometry)
	assert.Equal(t, "quakes today.xml", it.Name(), "a title equal to the url falls back to the file name")
}

func TestGeoRSSInvalidDocument(t *testing.T) {
	t.Parallel()
	it := NewGeoRSS(testEnv(t, nil), "html")
	require.NoError(t, it.SetTrait(strata.Definition, "geoRssString", "<html><body/></html>"))
	res := it.LoadMapItems(context.Background())
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, loaderr.ErrParse)
	assert.ErrorIs(t, res.Err, errInvalidFeed)
	assert.Empty(t, it.MapItems())
}

func TestGeoRSSWithoutSource(t *testing.T) {
	t.Parallel()
	it := NewGeoRSS(testEnv(t, nil), "empty")
	res := it.LoadMapItems(context.Background())
	assert.ErrorIs(t, res.Err, loaderr.ErrNetwork)
}

func TestGPX(t *testing.T) {
	t.Parallel()
	const doc = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <wpt lat="-33.85" lon="151.21"><ele>12.5</ele><name>Opera</name></wpt>
  <wpt lat="-33.86" lon="151.20"><name>Bridge</name></wpt>
  <trk><name>Walk</name><trkseg>
    <trkpt lat="-33.85" lon="151.21"><time>2020-01-01T00:00:00Z</time></trkpt>
    <trkpt lat="-33.86" lon="151.20"><time>2020-01-01T00:10:00Z</time></trkpt>
  </trkseg></trk>
</gpx>`
	it := NewGPX(testEnv(t, nil), "walk")
	it.SetLocalData("walk.gpx", []byte(doc))
	load(t, it)

	fc := it.ReadyData()
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "Opera", fc.Features[0].Properties["name"])
	assert.Equal(t, 12.5, fc.Features[0].Properties["ele"])
	track, ok := fc.Features[2].Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Len(t, track, 2)
	assert.Equal(t, "Walk", fc.Features[2].Properties["name"])
	assert.Equal(t, []any{"2020-01-01T00:00:00Z", "2020-01-01T00:10:00Z"}, fc.Features[2].Properties["coordTimes"])
}

func TestGPXInvalid(t *testing.T) {
	t.Parallel()
	it := NewGPX(testEnv(t, nil), "bad")
	it.SetLocalData("bad.gpx", []byte("not xml"))
	res := it.LoadMapItems(context.Background())
	assert.ErrorIs(t, res.Err, loaderr.ErrParse)
}

func zipDir(t *testing.T, dir string, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		w, err := zw.Create("sites/" + name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestShapefile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := shp.Create(filepath.Join(dir, "sites.shp"), shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 20),
		shp.FloatField("DEPTH", 10, 2),
	}))
	for i, p := range []struct {
		name string
		x, y float64
	}{{"north", 151, -33}, {"south", 152, -34.5}} {
		n := w.Write(&shp.Point{X: p.x, Y: p.y})
		require.NoError(t, w.WriteAttribute(int(n), 0, p.name))
		require.NoError(t, w.WriteAttribute(int(n), 1, float64(i)+0.5))
	}
	w.Close()
	// go-shp drops the dot when naming the attribute file.
	require.NoError(t, os.Rename(filepath.Join(dir, "sitesdbf"), filepath.Join(dir, "sites.dbf")))

	it := NewShapefile(testEnv(t, nil), "sites")
	it.SetLocalData("sites.zip", zipDir(t, dir, "sites.shp", "sites.shx", "sites.dbf"))
	load(t, it)

	fc := it.ReadyData()
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{152, -34.5}, fc.Features[1].Geometry)
	assert.Equal(t, "south", fc.Features[1].Properties["NAME"])
	assert.Equal(t, 1.5, fc.Features[1].Properties["DEPTH"])
}

func TestShapefileWithoutDBF(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := shp.Create(filepath.Join(dir, "sites.shp"), shp.POINT)
	require.NoError(t, err)
	w.Write(&shp.Point{X: 1, Y: 2})
	w.Close()

	it := NewShapefile(testEnv(t, nil), "sites")
	it.SetLocalData("sites.zip", zipDir(t, dir, "sites.shp"))
	res := it.LoadMapItems(context.Background())
	assert.ErrorIs(t, res.Err, loaderr.ErrParse)
}

func TestPrjCRS(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":                                   "",
		`GEOGCS["GCS_WGS_1984"]`:             "",
		`PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS[]]`: "EPSG:3857",
		`PROJCS["GDA94_MGA_zone_55",GEOGCS[]]`:                      "GDA94_MGA_zone_55",
	}
	for wkt, want := range cases {
		assert.Equal(t, want, prjCRS(wkt), wkt)
	}
}

func TestAttributeValuePadding(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "south", attributeValue(shp.StringField("NAME", 20), "south\x00\x00\x00"))
	assert.Equal(t, 1.5, attributeValue(shp.FloatField("DEPTH", 10, 2), "1.50\x00\x00"))
	assert.Nil(t, attributeValue(shp.FloatField("DEPTH", 10, 2), "\x00\x00"))
}

func gpkgBlob(t *testing.T, g orb.Geometry, srs uint32) []byte {
	t.Helper()
	body, err := wkb.Marshal(g, binary.LittleEndian)
	require.NoError(t, err)
	header := []byte{'G', 'P', 0, 0x01, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(header[4:], srs)
	return append(header, body...)
}

func buildGeoPackage(t *testing.T, srs uint32) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.gpkg")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE gpkg_contents (table_name TEXT, data_type TEXT, identifier TEXT);
CREATE TABLE gpkg_geometry_columns (table_name TEXT, column_name TEXT);
CREATE TABLE sites (fid INTEGER PRIMARY KEY, geom BLOB, name TEXT, visits INTEGER);
INSERT INTO gpkg_contents VALUES ('sites', 'features', 'Sites');
INSERT INTO gpkg_geometry_columns VALUES ('sites', 'geom');`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sites (geom, name, visits) VALUES (?, 'a', 3), (?, 'b', 4)`,
		gpkgBlob(t, orb.Point{151, -33}, srs),
		gpkgBlob(t, orb.LineString{{151, -33}, {152, -34}}, srs))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestGeoPackage(t *testing.T) {
	t.Parallel()
	it := NewGeoPackage(testEnv(t, nil), "gpkg")
	it.SetLocalData("sites.gpkg", buildGeoPackage(t, 4326))
	load(t, it)

	fc := it.ReadyData()
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{151, -33}, fc.Features[0].Geometry)
	assert.Equal(t, "a", fc.Features[0].Properties["name"])
	assert.Equal(t, 3.0, fc.Features[0].Properties["visits"])
	assert.NotContains(t, fc.Features[0].Properties, "geom")
	assert.IsType(t, orb.LineString{}, fc.Features[1].Geometry)

	named := NewGeoPackage(testEnv(t, nil), "missing-layer")
	require.NoError(t, named.SetTrait(strata.Definition, "layerName", "roads"))
	named.SetLocalData("sites.gpkg", buildGeoPackage(t, 4326))
	res := named.LoadMapItems(context.Background())
	assert.ErrorIs(t, res.Err, loaderr.ErrParse)
}

func TestGeoPackageProjectedSRS(t *testing.T) {
	t.Parallel()
	it := NewGeoPackage(testEnv(t, nil), "projected")
	it.SetLocalData("sites.gpkg", buildGeoPackage(t, 28355))
	res := it.LoadMapItems(context.Background())
	assert.ErrorIs(t, res.Err, loaderr.ErrParse, "unsupported CRS")
}

func TestDecodeGeometry(t *testing.T) {
	t.Parallel()
	g, err := decodeGeometry(nil)
	assert.NoError(t, err)
	assert.Nil(t, g)

	_, err = decodeGeometry([]byte("XX012345"))
	assert.ErrorIs(t, err, ErrGeometryBlob)

	blob := gpkgBlob(t, orb.Point{1, 2}, 4326)
	assert.Equal(t, int32(4326), srsID(blob))
	g, err = decodeGeometry(blob)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 2}, g)
}

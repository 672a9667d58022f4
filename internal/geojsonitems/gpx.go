package geojsonitems

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tkrajina/gpxgo/gpx"

	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

// TypeGPX is the type tag of GPXItem.
const TypeGPX = "gpx"

// GPXItem loads a GPX file. Waypoints become points; tracks and routes
// become lines.
type GPXItem struct {
	Mixin

	localMu sync.RWMutex
	local   []byte
}

// NewGPX returns an idle gpx item.
func NewGPX(env *model.Env, id string) *GPXItem {
	it := &GPXItem{}
	it.init(env, schemaFor(TypeGPX), id, it.load, nil)
	return it
}

// URL returns the url trait.
func (it *GPXItem) URL() string { return it.String("url") }

// SetLocalData replaces the url with the contents of a local file.
func (it *GPXItem) SetLocalData(_ string, data []byte) {
	it.localMu.Lock()
	it.local = data
	it.localMu.Unlock()
	it.InvalidateMapItems()
}

func (it *GPXItem) load(ctx context.Context) ([]*geojson.FeatureCollection, error) {
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
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, it.ParseError(err, u, "GPX")
	}
	return one(gpxToCollection(doc), nil)
}

func gpxToCollection(doc *gpx.GPX) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, wpt := range doc.Waypoints {
		f := geojson.NewFeature(orb.Point{wpt.Longitude, wpt.Latitude})
		setPointProperties(f.Properties, wpt)
		fc.Append(f)
	}
	for _, trk := range doc.Tracks {
		var lines orb.MultiLineString
		var times []any
		for _, seg := range trk.Segments {
			line, segTimes := gpxLine(seg.Points)
			if len(line) > 0 {
				lines = append(lines, line)
				times = append(times, segTimes...)
			}
		}
		if len(lines) == 0 {
			continue
		}
		var g orb.Geometry = lines
		if len(lines) == 1 {
			g = lines[0]
		}
		f := geojson.NewFeature(g)
		setNonEmpty(f.Properties, "name", trk.Name)
		setNonEmpty(f.Properties, "desc", trk.Description)
		setNonEmpty(f.Properties, "type", trk.Type)
		f.Properties["kind"] = "track"
		if len(times) > 0 {
			f.Properties["coordTimes"] = times
		}
		fc.Append(f)
	}
	for _, rte := range doc.Routes {
		line, _ := gpxLine(rte.Points)
		if len(line) == 0 {
			continue
		}
		f := geojson.NewFeature(line)
		setNonEmpty(f.Properties, "name", rte.Name)
		setNonEmpty(f.Properties, "desc", rte.Description)
		f.Properties["kind"] = "route"
		fc.Append(f)
	}
	return fc
}

func gpxLine(points []gpx.GPXPoint) (orb.LineString, []any) {
	line := make(orb.LineString, 0, len(points))
	var times []any
	for _, p := range points {
		line = append(line, orb.Point{p.Longitude, p.Latitude})
		if !p.Timestamp.IsZero() {
			times = append(times, p.Timestamp.UTC().Format(time.RFC3339))
		}
	}
	return line, times
}

func setPointProperties(props geojson.Properties, p gpx.GPXPoint) {
	setNonEmpty(props, "name", p.Name)
	setNonEmpty(props, "desc", p.Description)
	setNonEmpty(props, "sym", p.Symbol)
	if p.Elevation.NotNull() {
		props["ele"] = p.Elevation.Value()
	}
	if !p.Timestamp.IsZero() {
		props["time"] = p.Timestamp.UTC().Format(time.RFC3339)
	}
}

func setNonEmpty(props geojson.Properties, key, value string) {
	if value != "" {
		props[key] = value
	}
}

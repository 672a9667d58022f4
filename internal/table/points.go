package table

import (
	"strconv"

	"github.com/paulmach/orb"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
)

// RowGroupProperty is the entity property holding a row's group index.
const RowGroupProperty = "_rowGroup_"

// PointDataSource renders a point style as one entity per row with a valid
// position. Rows of the same row group share a group index property; with a
// time column each entity is available from its row's time until the next
// time in its group.
func PointDataSource(name string, t *Table, cols []Column, s Style) *mapitem.DataSource {
	ds := &mapitem.DataSource{Name: name, Show: true}
	lonCol, okLon := Find(cols, s.LongitudeColumn)
	latCol, okLat := Find(cols, s.LatitudeColumn)
	if !okLon || !okLat {
		return ds
	}
	lons, lats := lonCol.Numbers(), latCol.Numbers()
	rows := t.NumRows()
	cmap := NewColorMap(cols, s, name)
	colorValues := t.Values(t.Index(s.ColorColumn))

	var intervals []*mapitem.TimeInterval
	if s.IsTimeVarying() {
		intervals = TimeIntervals(cols, s, rows)
	}
	group := make([]int, rows)
	for g, members := range RowGroups(cols, s.IDColumns, rows) {
		for _, r := range members {
			group[r] = g
		}
	}

	for r := range rows {
		if !lons.OK[r] || !lats.OK[r] {
			continue
		}
		props := make(map[string]any, len(cols)+1)
		for _, c := range cols {
			props[c.Name] = c.Values[r]
		}
		props[RowGroupProperty] = group[r]
		cell := ""
		if r < len(colorValues) {
			cell = colorValues[r]
		}
		e := mapitem.Entity{
			ID:         strconv.Itoa(r),
			Geometry:   orb.Point{lons.Values[r], lats.Values[r]},
			Position:   &mapitem.Cartographic{Longitude: lons.Values[r], Latitude: lats.Values[r]},
			Properties: props,
			Style:      mapitem.EntityStyle{MarkerColor: cmap.Color(cell), MarkerSize: 8, MarkerOpacity: 1},
		}
		if intervals != nil {
			e.Availability = intervals[r]
		}
		ds.Entities = append(ds.Entities, e)
	}
	if intervals != nil {
		ds.Clock = Clock(intervals)
	}
	return ds
}

// Extent returns the bounding rectangle of a point style's positions.
func Extent(cols []Column, s Style) (mapitem.Rectangle, bool) {
	lonCol, okLon := Find(cols, s.LongitudeColumn)
	latCol, okLat := Find(cols, s.LatitudeColumn)
	if !okLon || !okLat {
		return mapitem.Rectangle{}, false
	}
	lons, lats := lonCol.Numbers(), latCol.Numbers()
	var b orb.Bound
	found := false
	for r := range lons.Values {
		if r >= len(lats.OK) || !lons.OK[r] || !lats.OK[r] {
			continue
		}
		p := orb.Point{lons.Values[r], lats.Values[r]}
		if !found {
			b, found = p.Bound(), true
			continue
		}
		b = b.Extend(p)
	}
	if !found {
		return mapitem.Rectangle{}, false
	}
	return mapitem.Rectangle{West: b.Min.Lon(), South: b.Min.Lat(), East: b.Max.Lon(), North: b.Max.Lat()}, true
}

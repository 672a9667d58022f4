package datasourceitems

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/beevik/etree"
	"github.com/paulmach/orb"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
)

// errNotKML is returned for XML whose root is not a kml element.
var errNotKML = errors.New("document is not KML")

// endOfTime closes availability intervals that have no end.
func endOfTime() time.Time { return time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC) }

// parseKML reads the placemarks of a KML document. resolve maps icon hrefs
// to fetchable URLs.
func parseKML(doc *etree.Document, resolve func(string) string) (*mapitem.DataSource, error) {
	root := doc.Root()
	if root == nil || root.Tag != "kml" {
		return nil, errNotKML
	}
	styles := kmlStyles(root, resolve)
	ds := &mapitem.DataSource{Show: true}
	if d := root.SelectElement("Document"); d != nil {
		ds.Name = childText(d, "name")
	}

	for i, pm := range root.FindElements("//Placemark") {
		e := mapitem.Entity{
			ID:          pm.SelectAttrValue("id", fmt.Sprintf("placemark-%d", i+1)),
			Name:        childText(pm, "name"),
			Description: childText(pm, "description"),
			Properties:  extendedData(pm),
		}
		if ref := childText(pm, "styleUrl"); ref != "" {
			e.Style = styles.lookup(ref)
		}
		if s := pm.SelectElement("Style"); s != nil {
			e.Style = mergeStyle(e.Style, readStyle(s, resolve))
		}
		g, clamp, err := placemarkGeometry(pm)
		if err != nil {
			return nil, fmt.Errorf("placemark %s: %w", e.ID, err)
		}
		e.Geometry = g
		e.Style.ClampToGround = clamp
		if pt, ok := g.(orb.Point); ok {
			e.Position = &mapitem.Cartographic{Longitude: pt.Lon(), Latitude: pt.Lat(), Height: pointHeight(pm)}
		}
		e.Availability = availability(pm)
		ds.Entities = append(ds.Entities, e)
	}
	ds.Clock = clockOf(ds.Entities)
	return ds, nil
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// extendedData collects Data and SchemaData values.
func extendedData(pm *etree.Element) map[string]any {
	ext := pm.SelectElement("ExtendedData")
	if ext == nil {
		return nil
	}
	props := map[string]any{}
	for _, d := range ext.SelectElements("Data") {
		if name := d.SelectAttrValue("name", ""); name != "" {
			props[name] = childText(d, "value")
		}
	}
	for _, sd := range ext.FindElements(".//SimpleData") {
		if name := sd.SelectAttrValue("name", ""); name != "" {
			props[name] = strings.TrimSpace(sd.Text())
		}
	}
	return props
}

// placemarkGeometry returns the geometry of a placemark and whether it is
// clamped to the ground.
func placemarkGeometry(pm *etree.Element) (orb.Geometry, bool, error) {
	for _, c := range pm.ChildElements() {
		switch c.Tag {
		case "Point", "LineString", "LinearRing", "Polygon", "MultiGeometry":
			g, err := geometry(c)
			if err != nil {
				return nil, false, err
			}
			mode := c.FindElement(".//altitudeMode")
			return g, mode == nil || strings.TrimSpace(mode.Text()) == "clampToGround", nil
		}
	}
	return nil, false, nil
}

func geometry(el *etree.Element) (orb.Geometry, error) {
	switch el.Tag {
	case "Point":
		pts, err := coordinates(el)
		if err != nil {
			return nil, err
		}
		if len(pts) != 1 {
			return nil, fmt.Errorf("point has %d positions", len(pts))
		}
		return pts[0], nil
	case "LineString":
		pts, err := coordinates(el)
		if err != nil {
			return nil, err
		}
		return orb.LineString(pts), nil
	case "LinearRing":
		pts, err := coordinates(el)
		if err != nil {
			return nil, err
		}
		return orb.Polygon{closeRing(pts)}, nil
	case "Polygon":
		outer := el.FindElement("outerBoundaryIs/LinearRing")
		if outer == nil {
			return nil, errors.New("polygon has no outer boundary")
		}
		pts, err := coordinates(outer)
		if err != nil {
			return nil, err
		}
		poly := orb.Polygon{closeRing(pts)}
		for _, inner := range el.FindElements("innerBoundaryIs/LinearRing") {
			pts, err := coordinates(inner)
			if err != nil {
				return nil, err
			}
			poly = append(poly, closeRing(pts))
		}
		return poly, nil
	case "MultiGeometry":
		var coll orb.Collection
		for _, c := range el.ChildElements() {
			if c.Tag == "altitudeMode" || c.Tag == "extrude" || c.Tag == "tessellate" {
				continue
			}
			g, err := geometry(c)
			if err != nil {
				return nil, err
			}
			coll = append(coll, g)
		}
		return coll, nil
	}
	return nil, fmt.Errorf("unsupported geometry %s", el.Tag)
}

// coordinates reads the lon,lat[,alt] tuples of an element.
func coordinates(el *etree.Element) ([]orb.Point, error) {
	var pts []orb.Point
	for _, tuple := range strings.Fields(childText(el, "coordinates")) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("bad coordinate %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad coordinate %q: %w", tuple, err)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad coordinate %q: %w", tuple, err)
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	return pts, nil
}

func closeRing(pts []orb.Point) orb.Ring {
	if n := len(pts); n > 0 && pts[0] != pts[n-1] {
		pts = append(pts, pts[0])
	}
	return orb.Ring(pts)
}

func pointHeight(pm *etree.Element) float64 {
	c := pm.FindElement("Point/coordinates")
	if c == nil {
		return 0
	}
	parts := strings.Split(strings.TrimSpace(c.Text()), ",")
	if len(parts) < 3 {
		return 0
	}
	h, _ := strconv.ParseFloat(parts[2], 64)
	return h
}

// availability reads a TimeSpan or TimeStamp. Open ends run to endOfTime.
func availability(pm *etree.Element) *mapitem.TimeInterval {
	parse := func(s string) (time.Time, bool) {
		if s == "" {
			return time.Time{}, false
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		return t, err == nil
	}
	if span := pm.SelectElement("TimeSpan"); span != nil {
		begin, okB := parse(childText(span, "begin"))
		end, okE := parse(childText(span, "end"))
		if !okB && !okE {
			return nil
		}
		if !okE {
			end = endOfTime()
		}
		return &mapitem.TimeInterval{Start: begin, Stop: end}
	}
	if stamp := pm.SelectElement("TimeStamp"); stamp != nil {
		if when, ok := parse(childText(stamp, "when")); ok {
			return &mapitem.TimeInterval{Start: when, Stop: endOfTime()}
		}
	}
	return nil
}

// clockOf spans the availability of all entities, ignoring open ends.
func clockOf(entities []mapitem.Entity) *mapitem.Clock {
	var c *mapitem.Clock
	for _, e := range entities {
		a := e.Availability
		if a == nil {
			continue
		}
		stop := a.Stop
		if stop.Equal(endOfTime()) {
			stop = a.Start
		}
		if c == nil {
			c = &mapitem.Clock{Start: a.Start, Stop: stop, Multiplier: 1}
			continue
		}
		if a.Start.Before(c.Start) {
			c.Start = a.Start
		}
		if stop.After(c.Stop) {
			c.Stop = stop
		}
	}
	if c != nil {
		c.Current = c.Start
	}
	return c
}

package geojsonitems

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/paulmach/orb"
)

// entryGeometry reads the position of a feed entry from GeoRSS Simple,
// GeoRSS GML or W3C geo elements.
func entryGeometry(el *etree.Element) (orb.Geometry, bool) {
	if c := el.SelectElement("point"); c != nil {
		if pts := latLonList(c.Text()); len(pts) == 1 {
			return pts[0], true
		}
	}
	if c := el.SelectElement("line"); c != nil {
		if pts := latLonList(c.Text()); len(pts) >= 2 {
			return orb.LineString(pts), true
		}
	}
	if c := el.SelectElement("polygon"); c != nil {
		if ring := closeRing(latLonList(c.Text())); len(ring) >= 4 {
			return orb.Polygon{ring}, true
		}
	}
	if c := el.SelectElement("box"); c != nil {
		if pts := latLonList(c.Text()); len(pts) == 2 {
			return orb.Bound{Min: pts[0], Max: pts[1]}.ToPolygon(), true
		}
	}
	if c := el.SelectElement("where"); c != nil {
		if g, ok := gmlGeometry(c); ok {
			return g, true
		}
	}
	if c := el.SelectElement("Point"); c != nil {
		el = c
	}
	lat, errLat := parseFloat(el.SelectElement("lat"))
	lon, errLon := parseFloat(el.SelectElement("long"))
	if errLat == nil && errLon == nil {
		return orb.Point{lon, lat}, true
	}
	return nil, false
}

func gmlGeometry(where *etree.Element) (orb.Geometry, bool) {
	for _, g := range where.ChildElements() {
		switch g.Tag {
		case "Point":
			if pts := latLonList(childText(g, "pos")); len(pts) == 1 {
				return pts[0], true
			}
		case "LineString":
			if pts := latLonList(childText(g, "posList")); len(pts) >= 2 {
				return orb.LineString(pts), true
			}
		case "Polygon":
			ring := g.FindElement(".//LinearRing")
			if ring == nil {
				continue
			}
			if pts := closeRing(latLonList(childText(ring, "posList"))); len(pts) >= 4 {
				return orb.Polygon{pts}, true
			}
		case "Envelope":
			lower := latLonList(childText(g, "lowerCorner"))
			upper := latLonList(childText(g, "upperCorner"))
			if len(lower) == 1 && len(upper) == 1 {
				return orb.Bound{Min: lower[0], Max: upper[0]}.ToPolygon(), true
			}
		}
	}
	return nil, false
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}

// latLonList parses whitespace or comma separated "lat lon" pairs into
// lon/lat points. An odd count or a bad number yields nil.
func latLonList(s string) []orb.Point {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\n' || r == '\t' || r == '\r'
	})
	if len(fields) == 0 || len(fields)%2 != 0 {
		return nil
	}
	pts := make([]orb.Point, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		lat, err1 := strconv.ParseFloat(fields[i], 64)
		lon, err2 := strconv.ParseFloat(fields[i+1], 64)
		if err1 != nil || err2 != nil {
			return nil
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	return pts
}

func closeRing(pts []orb.Point) orb.Ring {
	if len(pts) == 0 {
		return nil
	}
	ring := orb.Ring(pts)
	if !ring.Closed() {
		ring = append(ring, pts[0])
	}
	return ring
}

func parseFloat(el *etree.Element) (float64, error) {
	if el == nil {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(strings.TrimSpace(el.Text()), 64)
}

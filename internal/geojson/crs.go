package geojson

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// CRS codes accepted without reprojection.
var geographicCRS = map[string]bool{
	"EPSG:4326": true,
	"EPSG:4283": true,
	"CRS84":     true,
}

// CRS codes in spherical web mercator.
var mercatorCRS = map[string]bool{
	"EPSG:3857":   true,
	"EPSG:900913": true,
	"EPSG:102100": true,
	"EPSG:102113": true,
}

// CRSCode returns the normalised code named by a collection's "crs" member,
// such as "EPSG:3857" or "CRS84", or "" when the collection names none.
func CRSCode(fc *geojson.FeatureCollection) string {
	crs, ok := fc.ExtraMembers["crs"].(map[string]any)
	if !ok {
		return ""
	}
	props, _ := crs["properties"].(map[string]any)
	switch crs["type"] {
	case "EPSG", "epsg":
		switch code := props["code"].(type) {
		case float64:
			return fmt.Sprintf("EPSG:%d", int(code))
		case string:
			return "EPSG:" + code
		}
	case "name":
		name, _ := props["name"].(string)
		return normaliseCRSName(name)
	}
	return ""
}

func normaliseCRSName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case upper == "":
		return ""
	case strings.HasSuffix(upper, "CRS84"):
		return "CRS84"
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:"):
		code := strings.TrimPrefix(upper, "URN:OGC:DEF:CRS:EPSG:")
		code = strings.TrimLeft(code, ":")
		if i := strings.LastIndex(code, ":"); i >= 0 {
			code = code[i+1:]
		}
		return "EPSG:" + code
	case strings.HasPrefix(upper, "EPSG:"):
		return upper
	}
	return upper
}

// ReprojectToGeographic converts a collection to longitude/latitude in
// place and drops its "crs" member. Collections without a CRS are assumed
// to be geographic already.
func ReprojectToGeographic(fc *geojson.FeatureCollection) error {
	code := CRSCode(fc)
	switch {
	case code == "" || geographicCRS[code]:
	case mercatorCRS[code]:
		for _, f := range fc.Features {
			if f.Geometry != nil {
				f.Geometry = project.Geometry(orb.Clone(f.Geometry), project.Mercator.ToWGS84)
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCRS, code)
	}
	delete(fc.ExtraMembers, "crs")
	return nil
}

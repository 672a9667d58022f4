package sceneitems

import "math"

// WGS84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84E2 = 0.0066943799901413165
)

type vec3 [3]float64

// mat3 is row-major: m[row][col].
type mat3 [3][3]float64

func (a mat3) mul(b mat3) mat3 {
	var out mat3
	for r := range 3 {
		for c := range 3 {
			for k := range 3 {
				out[r][c] += a[r][k] * b[k][c]
			}
		}
	}
	return out
}

func rotX(a float64) mat3 {
	s, c := math.Sincos(a)
	return mat3{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func rotY(a float64) mat3 {
	s, c := math.Sincos(a)
	return mat3{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func rotZ(a float64) mat3 {
	s, c := math.Sincos(a)
	return mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func identity3() mat3 { return mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} }

// placement holds the optional transformation traits of an item. Nil
// fields keep the corresponding part of the base matrix.
type placement struct {
	lon, lat, height     *float64
	heading, pitch, roll *float64
	scale                *float64
}

// cartesian converts geodetic degrees and metres to earth-fixed metres.
func cartesian(lonDeg, latDeg, h float64) vec3 {
	lon, lat := lonDeg*math.Pi/180, latDeg*math.Pi/180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return vec3{(n + h) * cosLat * cosLon, (n + h) * cosLat * sinLon, (n*(1-wgs84E2) + h) * sinLat}
}

// geodetic returns the longitude and geodetic latitude of p in radians.
func geodetic(p vec3) (lon, lat float64) {
	lon = math.Atan2(p[1], p[0])
	r := math.Hypot(p[0], p[1])
	if r < 1e-9 {
		switch {
		case p[2] > 0:
			return lon, math.Pi / 2
		case p[2] < 0:
			return lon, -math.Pi / 2
		}
		return lon, 0
	}
	lat = math.Atan2(p[2], r*(1-wgs84E2))
	for range 5 {
		sin := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sin*sin)
		h := r/math.Cos(lat) - n
		lat = math.Atan2(p[2], r*(1-wgs84E2*n/(n+h)))
	}
	return lon, lat
}

// eastNorthUp returns the local frame at p with columns east, north, up.
func eastNorthUp(p vec3) mat3 {
	lon, lat := geodetic(p)
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	east := vec3{-sinLon, cosLon, 0}
	north := vec3{-sinLat * cosLon, -sinLat * sinLon, cosLat}
	up := vec3{cosLat * cosLon, cosLat * sinLon, sinLat}
	var m mat3
	for r := range 3 {
		m[r] = [3]float64{east[r], north[r], up[r]}
	}
	return m
}

// headingPitchRoll returns the rotation of the given angles in degrees,
// heading about the local up axis, pitch about north and roll about east.
func headingPitchRoll(heading, pitch, roll float64) mat3 {
	const rad = math.Pi / 180
	return rotZ(-heading * rad).mul(rotY(-pitch * rad)).mul(rotX(roll * rad))
}

// decompose splits a column-major affine matrix into translation, rotation
// and per-axis scale.
func decompose(m []float64) (vec3, mat3, vec3) {
	if len(m) != 16 {
		return vec3{}, identity3(), vec3{1, 1, 1}
	}
	t := vec3{m[12], m[13], m[14]}
	var rot mat3
	var scale vec3
	for c := range 3 {
		col := vec3{m[c*4], m[c*4+1], m[c*4+2]}
		s := math.Sqrt(col[0]*col[0] + col[1]*col[1] + col[2]*col[2])
		scale[c] = s
		for r := range 3 {
			if s != 0 {
				rot[r][c] = col[r] / s
			}
		}
	}
	return t, rot, scale
}

// compose builds a column-major affine matrix.
func compose(t vec3, rot mat3, scale vec3) []float64 {
	out := make([]float64, 16)
	for c := range 3 {
		for r := range 3 {
			out[c*4+r] = rot[r][c] * scale[c]
		}
	}
	out[12], out[13], out[14], out[15] = t[0], t[1], t[2], 1
	return out
}

// modelMatrix replaces parts of base with the placement. The origin moves
// the horizontal position, and the height only when it is given. A full
// rotation is applied in the east-north-up frame at the resulting position.
func modelMatrix(base []float64, pl placement) []float64 {
	pos, rot, scale := decompose(base)
	if pl.lon != nil && pl.lat != nil {
		h := 0.0
		if pl.height != nil {
			h = *pl.height
		}
		p := cartesian(*pl.lon, *pl.lat, h)
		pos[0], pos[1] = p[0], p[1]
		if pl.height != nil {
			pos[2] = p[2]
		}
	}
	if pl.heading != nil && pl.pitch != nil && pl.roll != nil {
		rot = eastNorthUp(pos).mul(headingPitchRoll(*pl.heading, *pl.pitch, *pl.roll))
	}
	if pl.scale != nil {
		scale = vec3{*pl.scale, *pl.scale, *pl.scale}
	}
	return compose(pos, rot, scale)
}

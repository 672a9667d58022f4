package imageryitems

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"strings"
)

// errNotTIFF is returned for data that does not start with a TIFF header.
var errNotTIFF = errors.New("not a TIFF file")

// TIFF and GeoTIFF tags read from the first image directory.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagSamplesPerPixel = 277
	tagPixelScale      = 33550
	tagTiepoint        = 33922
	tagGeoKeys         = 34735
	tagGDALNoData      = 42113

	geoKeyModelType     = 1024
	modelTypeGeographic = 2
	tiffTypeASCII       = 2
	tiffTypeShort       = 3
	tiffTypeLong        = 4
	tiffTypeDouble      = 12
	tiffTypeLong8       = 16
)

const (
	classicMagic uint16 = 42
	bigTIFFMagic uint16 = 43
)

// tiffInfo is what the header of a GeoTIFF says about the image.
type tiffInfo struct {
	Width, Height int
	Bands         int
	Geographic    bool
	PixelScale    []float64
	Tiepoint      []float64
	NoData        *float64
}

// Rectangle returns the geographic extent of the image, when the georeference
// is in degrees and was present in the header bytes.
func (ti tiffInfo) Rectangle() (west, south, east, north float64, ok bool) {
	if !ti.Geographic || len(ti.PixelScale) < 2 || len(ti.Tiepoint) < 6 || ti.Width == 0 || ti.Height == 0 {
		return 0, 0, 0, 0, false
	}
	sx, sy := ti.PixelScale[0], ti.PixelScale[1]
	west = ti.Tiepoint[3] - ti.Tiepoint[0]*sx
	north = ti.Tiepoint[4] + ti.Tiepoint[1]*sy
	return west, north - float64(ti.Height)*sy, west + float64(ti.Width)*sx, north, true
}

type tiffReader struct {
	b   []byte
	bo  binary.ByteOrder
	big bool
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint64
	field []byte
}

// parseTIFF reads the first image directory of a classic or Big TIFF.
// Values stored beyond b are skipped.
func parseTIFF(b []byte) (tiffInfo, error) {
	if len(b) < 8 {
		return tiffInfo{}, errNotTIFF
	}
	r := tiffReader{b: b}
	switch string(b[:2]) {
	case "II":
		r.bo = binary.LittleEndian
	case "MM":
		r.bo = binary.BigEndian
	default:
		return tiffInfo{}, errNotTIFF
	}
	var ifd uint64
	switch r.bo.Uint16(b[2:4]) {
	case classicMagic:
		ifd = uint64(r.bo.Uint32(b[4:8]))
	case bigTIFFMagic:
		if len(b) < 16 {
			return tiffInfo{}, errNotTIFF
		}
		r.big = true
		ifd = r.bo.Uint64(b[8:16])
	default:
		return tiffInfo{}, errNotTIFF
	}

	info := tiffInfo{Bands: 1}
	for _, e := range r.entries(ifd) {
		data := r.data(e)
		if data == nil {
			continue
		}
		switch e.tag {
		case tagImageWidth:
			info.Width = int(r.unsigned(e.typ, data, 0))
		case tagImageLength:
			info.Height = int(r.unsigned(e.typ, data, 0))
		case tagSamplesPerPixel:
			info.Bands = int(r.unsigned(e.typ, data, 0))
		case tagPixelScale:
			info.PixelScale = r.doubles(e, data)
		case tagTiepoint:
			info.Tiepoint = r.doubles(e, data)
		case tagGeoKeys:
			info.Geographic = r.geoKey(e, data, geoKeyModelType) == modelTypeGeographic
		case tagGDALNoData:
			if e.typ == tiffTypeASCII {
				if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimRight(string(data), "\x00")), 64); err == nil {
					info.NoData = &v
				}
			}
		}
	}
	return info, nil
}

func (r tiffReader) entries(off uint64) []tiffEntry {
	countSize, entrySize, fieldSize := uint64(2), uint64(12), uint64(4)
	if r.big {
		countSize, entrySize, fieldSize = 8, 20, 8
	}
	if off+countSize > uint64(len(r.b)) {
		return nil
	}
	var n uint64
	if r.big {
		n = r.bo.Uint64(r.b[off:])
	} else {
		n = uint64(r.bo.Uint16(r.b[off:]))
	}
	var out []tiffEntry
	for i := range n {
		p := off + countSize + i*entrySize
		if p+entrySize > uint64(len(r.b)) {
			break
		}
		e := tiffEntry{tag: r.bo.Uint16(r.b[p:]), typ: r.bo.Uint16(r.b[p+2:])}
		if r.big {
			e.count = r.bo.Uint64(r.b[p+4:])
		} else {
			e.count = uint64(r.bo.Uint32(r.b[p+4:]))
		}
		e.field = r.b[p+entrySize-fieldSize : p+entrySize]
		out = append(out, e)
	}
	return out
}

func typeSize(typ uint16) uint64 {
	switch typ {
	case tiffTypeShort:
		return 2
	case tiffTypeLong:
		return 4
	case tiffTypeDouble, tiffTypeLong8:
		return 8
	}
	return 1
}

// data returns the value bytes of e, inline or at its offset.
func (r tiffReader) data(e tiffEntry) []byte {
	size := typeSize(e.typ) * e.count
	if size <= uint64(len(e.field)) {
		return e.field[:size]
	}
	var off uint64
	if r.big {
		off = r.bo.Uint64(e.field)
	} else {
		off = uint64(r.bo.Uint32(e.field))
	}
	if off+size > uint64(len(r.b)) {
		return nil
	}
	return r.b[off : off+size]
}

func (r tiffReader) unsigned(typ uint16, data []byte, i int) uint64 {
	switch typ {
	case tiffTypeShort:
		return uint64(r.bo.Uint16(data[2*i:]))
	case tiffTypeLong:
		return uint64(r.bo.Uint32(data[4*i:]))
	case tiffTypeLong8:
		return r.bo.Uint64(data[8*i:])
	}
	return uint64(data[i])
}

func (r tiffReader) doubles(e tiffEntry, data []byte) []float64 {
	if e.typ != tiffTypeDouble {
		return nil
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(r.bo.Uint64(data[8*i:]))
	}
	return out
}

// geoKey returns a SHORT-valued key of a GeoKeyDirectory, or -1.
func (r tiffReader) geoKey(e tiffEntry, data []byte, key uint64) int {
	if e.typ != tiffTypeShort || e.count < 4 {
		return -1
	}
	keys := r.unsigned(e.typ, data, 3)
	for k := uint64(0); k < keys && int(4+4*k+3) < int(e.count); k++ {
		base := int(4 + 4*k)
		if r.unsigned(e.typ, data, base) == key && r.unsigned(e.typ, data, base+1) == 0 {
			return int(r.unsigned(e.typ, data, base+3))
		}
	}
	return -1
}

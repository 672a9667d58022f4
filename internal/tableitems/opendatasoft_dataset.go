package tableitems

import (
	"fmt"
	"slices"
	"strings"

	"github.com/TerriaJS/terriajs-sub017/internal/region"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
)

// Above these sizes only the fields needed for the default style are
// requested.
const (
	odsAllFieldsMax  = 10
	odsAllRecordsMax = 10000
)

type odsField struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type odsDataset struct {
	DatasetID string     `json:"dataset_id"`
	Fields    []odsField `json:"fields"`
	Metas     struct {
		Default struct {
			Title        string  `json:"title"`
			Description  string  `json:"description"`
			RecordsCount float64 `json:"records_count"`
		} `json:"default"`
	} `json:"metas"`
}

func (d odsDataset) fieldOfType(typ string) string {
	for _, f := range d.Fields {
		if f.Type == typ {
			return f.Name
		}
	}
	return ""
}

func (d odsDataset) field(name string) (odsField, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return odsField{}, false
}

// regionField returns the first field whose name or label names a region
// type, and that type.
func (d odsDataset) regionField(regions *region.Registry) (name, regionType string) {
	for _, f := range d.Fields {
		if typ, ok := regions.MatchColumn(f.Name); ok {
			return f.Name, typ
		}
		if typ, ok := regions.MatchColumn(f.Label); ok {
			return f.Name, typ
		}
	}
	return "", ""
}

func isODSIDField(f odsField) bool {
	for _, s := range []string{strings.ToLower(f.Name), strings.ToLower(f.Label)} {
		if strings.HasPrefix(s, "id") || strings.HasSuffix(s, "id") {
			return true
		}
	}
	return false
}

func isLatLonName(name string) bool {
	switch strings.ToLower(name) {
	case "lat", "latitude", "lon", "long", "lng", "longitude":
		return true
	}
	return false
}

// odsPlan is what metadata inspection decided about a dataset.
type odsPlan struct {
	dataset     odsDataset
	page        string
	timeField   string
	geoField    string
	regionField string
	regionType  string
	colorField  string
	aggregate   string
	maxSamples  int
	forceAll    bool
}

// usefulFields are the numeric and text fields worth colouring by.
func (p odsPlan) usefulFields(regions *region.Registry) []odsField {
	var out []odsField
	for _, f := range p.dataset.Fields {
		switch f.Type {
		case "double", "int", "text":
		default:
			continue
		}
		if isLatLonName(f.Name) || isODSIDField(f) || f.Name == p.regionField {
			continue
		}
		if _, ok := regions.MatchColumn(f.Name); ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// defaultColorField prefers double fields, then int, then text.
func (p odsPlan) defaultColorField(regions *region.Registry) string {
	useful := p.usefulFields(regions)
	for _, typ := range []string{"double", "int", "text"} {
		for _, f := range useful {
			if f.Type == typ {
				return f.Name
			}
		}
	}
	return ""
}

func (p odsPlan) recordsCount() int { return int(p.dataset.Metas.Default.RecordsCount) }

// selectAll reports whether every field can be requested.
func (p odsPlan) selectAll() bool {
	return p.forceAll ||
		len(p.dataset.Fields) <= odsAllFieldsMax ||
		p.recordsCount() < odsAllRecordsMax ||
		p.colorField == "" ||
		(p.geoField == "" && p.timeField == "")
}

func (p odsPlan) numericColor() bool {
	f, ok := p.dataset.field(p.colorField)
	return ok && (f.Type == "double" || f.Type == "int")
}

// query returns the select and group_by clauses of the records request.
func (p odsPlan) query() (sel, groupBy string) {
	if p.selectAll() {
		return "", ""
	}
	if p.aggregate != "" && p.timeField != "" {
		keys := nonEmpty(p.geoField, p.regionField)
		ranged := fmt.Sprintf("RANGE(%s, %s) as %s", p.timeField, p.aggregate, p.timeField)
		color := p.colorField
		if p.numericColor() {
			color = fmt.Sprintf("avg(%[1]s) as %[1]s", p.colorField)
		}
		return strings.Join(append(slices.Clone(keys), p.timeField, color), ", "),
			strings.Join(append(keys, ranged), ", ")
	}
	return strings.Join(nonEmpty(p.timeField, p.geoField, p.regionField, p.colorField), ", "), ""
}

func (p odsPlan) columns() []any {
	var cols []any
	if p.timeField != "" {
		cols = append(cols, map[string]any{"name": p.timeField, "type": "time"})
	}
	if p.colorField != "" && p.numericColor() {
		cols = append(cols, map[string]any{"name": p.colorField, "type": "scalar"})
	}
	if p.regionField != "" {
		cols = append(cols, map[string]any{"name": p.regionField, "type": "region", "regionType": p.regionType})
	}
	cols = append(cols, map[string]any{"name": odsRecordID, "type": "hidden"})
	for _, f := range p.dataset.Fields {
		if isODSIDField(f) && f.Name != p.regionField {
			cols = append(cols, map[string]any{"name": f.Name, "type": "hidden"})
		}
	}
	return cols
}

func (p odsPlan) defaultStyle() map[string]any {
	def := map[string]any{}
	if p.regionField != "" {
		def["regionColumn"] = p.regionField
	} else if p.geoField != "" {
		def["latitudeColumn"], def["longitudeColumn"] = "lat", "lon"
	}
	if p.timeField != "" {
		tt := map[string]any{"timeColumn": p.timeField}
		if p.geoField != "" && p.regionField == "" {
			tt["idColumns"] = []any{"lat", "lon"}
		}
		def["time"] = tt
	}
	if p.colorField != "" {
		def["color"] = map[string]any{"colorColumn": p.colorField}
	}
	return def
}

// stratum renders the plan as trait values.
func (p odsPlan) stratum() strata.Values {
	meta := p.dataset.Metas.Default
	v := strata.Values{
		"name":                nilIfEmpty(meta.Title),
		"description":         nilIfEmpty(meta.Description),
		"timeFieldName":       nilIfEmpty(p.timeField),
		"geoPoint2dFieldName": nilIfEmpty(p.geoField),
		"regionFieldName":     nilIfEmpty(p.regionField),
		"colorFieldName":      nilIfEmpty(p.colorField),
		"columns":             p.columns(),
		"defaultStyle":        p.defaultStyle(),
		"info": []any{map[string]any{
			"name":    "Dataset",
			"content": fmt.Sprintf("[%s](%s)", p.dataset.DatasetID, p.page),
		}},
	}
	if n := p.recordsCount(); n > 0 {
		v["recordsCount"] = float64(n)
	}
	if p.maxSamples > 0 {
		v["maxPointSamples"] = float64(p.maxSamples)
	}
	if p.colorField != "" {
		v["activeStyle"] = p.colorField
	}
	sel, groupBy := p.query()
	v["selectFields"] = nilIfEmpty(sel)
	v["groupByFields"] = nilIfEmpty(groupBy)
	return v
}

func nonEmpty(s ...string) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

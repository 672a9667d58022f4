package table

import (
	"maps"
	"slices"
	"strings"
)

// Style is a resolved table style: which columns position, colour and time
// the rows.
type Style struct {
	ID              string
	LongitudeColumn string
	LatitudeColumn  string
	RegionColumn    string
	ColorColumn     string
	TimeColumn      string
	EndTimeColumn   string
	IDColumns       []string
	DisplayDuration float64 // minutes; 0 derives finish times from the data
	Color           ColorTraits
}

// IsPoints reports whether the style places rows by longitude and latitude.
func (s Style) IsPoints() bool { return s.LongitudeColumn != "" && s.LatitudeColumn != "" }

// IsRegions reports whether the style maps rows onto regions.
func (s Style) IsRegions() bool { return s.RegionColumn != "" }

// IsTimeVarying reports whether rows carry a time.
func (s Style) IsTimeVarying() bool { return s.TimeColumn != "" }

// AutomaticStyles infers the table style stratum from column metadata. The
// result holds the defaultStyle, one style per colourable column and the
// activeStyle. Inference is deterministic in column order.
func AutomaticStyles(cols []Column) map[string]any {
	var lon, lat, region, timeCol string
	var scalars, textual []string
	for _, c := range cols {
		switch c.Type {
		case TypeLongitude:
			lon = first(lon, c.Name)
		case TypeLatitude:
			lat = first(lat, c.Name)
		case TypeRegion:
			region = first(region, c.Name)
			textual = append(textual, c.Name)
		case TypeTime:
			timeCol = first(timeCol, c.Name)
		case TypeScalar:
			if !isIDLike(c.Name) {
				scalars = append(scalars, c.Name)
			}
		case TypeEnum:
			if !isIDLike(c.Name) {
				textual = append(textual, c.Name)
			}
		}
	}
	colorColumn := ""
	switch {
	case len(scalars) > 0:
		colorColumn = scalars[0]
	case len(textual) > 0:
		colorColumn = textual[0]
	}

	def := map[string]any{}
	if lon != "" && lat != "" {
		def["longitudeColumn"], def["latitudeColumn"] = lon, lat
	}
	if region != "" {
		def["regionColumn"] = region
	}
	if colorColumn != "" {
		def["color"] = map[string]any{"colorColumn": colorColumn}
	}
	if timeCol != "" {
		timeTraits := map[string]any{"timeColumn": timeCol}
		if lon != "" && lat != "" {
			timeTraits["idColumns"] = []any{lat, lon}
		}
		def["time"] = timeTraits
	}

	styles := make([]any, 0, len(scalars)+len(textual))
	for _, name := range slices.Concat(scalars, textual) {
		styles = append(styles, map[string]any{"id": name, "color": map[string]any{"colorColumn": name}})
	}
	out := map[string]any{"defaultStyle": def, "styles": styles}
	if colorColumn != "" {
		out["activeStyle"] = colorColumn
	}
	return out
}

func first(cur, name string) string {
	if cur != "" {
		return cur
	}
	return name
}

func isIDLike(name string) bool {
	n := strings.ToLower(name)
	return n == "id" || n == "fid" || n == "objectid" || strings.HasSuffix(n, "_id")
}

// ResolveStyle merges the style named active over defaultStyle. An active
// name that matches no style but names a column colours by that column.
func ResolveStyle(defaultStyle map[string]any, styles []any, active string) Style {
	merged := deepCopy(defaultStyle)
	id := "default"
	found := false
	for _, el := range styles {
		m, ok := el.(map[string]any)
		if !ok || active == "" || m["id"] != active {
			continue
		}
		merged = merge(merged, m)
		id, found = active, true
		break
	}
	if !found && active != "" {
		color, _ := merged["color"].(map[string]any)
		color = maps.Clone(color)
		if color == nil {
			color = map[string]any{}
		}
		color["colorColumn"] = active
		merged["color"] = color
		id = active
	}

	s := Style{ID: id}
	s.LongitudeColumn, _ = merged["longitudeColumn"].(string)
	s.LatitudeColumn, _ = merged["latitudeColumn"].(string)
	s.RegionColumn, _ = merged["regionColumn"].(string)
	if color, ok := merged["color"].(map[string]any); ok {
		s.ColorColumn, _ = color["colorColumn"].(string)
		s.Color = colorTraitsFrom(color)
	} else {
		s.Color = colorTraitsFrom(nil)
	}
	if tt, ok := merged["time"].(map[string]any); ok {
		s.TimeColumn, _ = tt["timeColumn"].(string)
		s.EndTimeColumn, _ = tt["endTimeColumn"].(string)
		s.DisplayDuration, _ = tt["displayDuration"].(float64)
		for _, c := range anySlice(tt["idColumns"]) {
			if name, ok := c.(string); ok {
				s.IDColumns = append(s.IDColumns, name)
			}
		}
	}
	return s
}

// Validate clears column references that do not exist in cols.
func (s Style) Validate(cols []Column) Style {
	drop := func(name *string) {
		if _, ok := Find(cols, *name); !ok {
			*name = ""
		}
	}
	drop(&s.LongitudeColumn)
	drop(&s.LatitudeColumn)
	drop(&s.RegionColumn)
	drop(&s.ColorColumn)
	drop(&s.TimeColumn)
	drop(&s.EndTimeColumn)
	ids := s.IDColumns[:0:0]
	for _, id := range s.IDColumns {
		if _, ok := Find(cols, id); ok {
			ids = append(ids, id)
		}
	}
	s.IDColumns = ids
	return s
}

func anySlice(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return nil
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopy(sub)
			continue
		}
		out[k] = v
	}
	return out
}

// merge overlays src onto dst, recursing into nested objects.
func merge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		sub, isMap := v.(map[string]any)
		cur, curIsMap := dst[k].(map[string]any)
		if isMap && curIsMap {
			dst[k] = merge(cur, sub)
			continue
		}
		if isMap {
			dst[k] = deepCopy(sub)
			continue
		}
		dst[k] = v
	}
	return dst
}

// RowGroups partitions row indices by the joined values of the id columns,
// in first-seen order. Without id columns every row is its own group.
func RowGroups(cols []Column, idColumns []string, rows int) [][]int {
	var ids []Column
	for _, name := range idColumns {
		if c, ok := Find(cols, name); ok {
			ids = append(ids, c)
		}
	}
	if len(ids) == 0 {
		out := make([][]int, rows)
		for r := range rows {
			out[r] = []int{r}
		}
		return out
	}
	index := make(map[string]int)
	var groups [][]int
	for r := range rows {
		parts := make([]string, len(ids))
		for i, c := range ids {
			if r < len(c.Values) {
				parts[i] = c.Values[r]
			}
		}
		key := strings.Join(parts, "-")
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], r)
	}
	return groups
}

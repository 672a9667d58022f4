package table

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ColumnType is the semantic role of a column.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeLongitude
	TypeLatitude
	TypeHeight
	TypeTime
	TypeScalar
	TypeEnum
	TypeRegion
	TypeAddress
	TypeHidden
)

var columnTypeNames = map[ColumnType]string{
	TypeText:      "text",
	TypeLongitude: "longitude",
	TypeLatitude:  "latitude",
	TypeHeight:    "height",
	TypeTime:      "time",
	TypeScalar:    "scalar",
	TypeEnum:      "enum",
	TypeRegion:    "region",
	TypeAddress:   "address",
	TypeHidden:    "hidden",
}

// String returns the trait spelling of the type.
func (c ColumnType) String() string { return columnTypeNames[c] }

// ParseColumnType converts a trait value such as "scalar" to a ColumnType.
func ParseColumnType(s string) (ColumnType, bool) {
	for t, name := range columnTypeNames {
		if strings.EqualFold(name, s) {
			return t, true
		}
	}
	return TypeText, false
}

// typeHints are tried in order against the column name.
var typeHints = []struct {
	re  *regexp.Regexp
	typ ColumnType
}{
	{regexp.MustCompile(`(?i)^(lon|long|longitude|lng)$`), TypeLongitude},
	{regexp.MustCompile(`(?i)^(lat|latitude)$`), TypeLatitude},
	{regexp.MustCompile(`(?i)^(address|addr)$`), TypeAddress},
	{regexp.MustCompile(`(?i)^(.*[_ ])?(depth|height|elevation|altitude)$`), TypeHeight},
	{regexp.MustCompile(`(?i)^(.*[_ ])?(time|date)`), TypeTime},
	{regexp.MustCompile(`(?i)^(year)$`), TypeTime},
}

// RegionMatcher recognises region columns by name.
type RegionMatcher interface {
	// MatchColumn returns the region type whose aliases include name.
	MatchColumn(name string) (string, bool)
}

// ColumnOverride is one entry of the "columns" trait.
type ColumnOverride struct {
	Name       string
	Title      string
	Type       string
	RegionType string
}

// Column is one column of a table together with its inferred role.
type Column struct {
	Name       string
	Title      string
	Index      int
	Type       ColumnType
	RegionType string
	Values     []string
}

// Columns derives column metadata. An explicit type override wins, then a
// region match, then name hints, then the contents.
func (t *Table) Columns(overrides []ColumnOverride, regions RegionMatcher) []Column {
	byName := make(map[string]ColumnOverride, len(overrides))
	for _, o := range overrides {
		byName[o.Name] = o
	}
	cols := make([]Column, t.NumColumns())
	for i, name := range t.Names() {
		if name == "" {
			name = "Column" + strconv.Itoa(i)
		}
		o := byName[name]
		c := Column{Name: name, Title: o.Title, Index: i, Values: t.Values(i), RegionType: o.RegionType}
		if c.Title == "" {
			c.Title = name
		}
		if typ, ok := ParseColumnType(o.Type); ok && o.Type != "" {
			c.Type = typ
		} else if c.RegionType != "" {
			c.Type = TypeRegion
		} else if rt, ok := matchRegion(regions, name); ok {
			c.Type, c.RegionType = TypeRegion, rt
		} else {
			c.Type = InferType(name, c.Values)
		}
		cols[i] = c
	}
	return cols
}

func matchRegion(regions RegionMatcher, name string) (string, bool) {
	if regions == nil {
		return "", false
	}
	return regions.MatchColumn(name)
}

// InferType guesses a column type from its name and then its values. A
// column is scalar when non-numbers are at most a tenth of the numbers;
// otherwise it is an enum when it has few distinct values.
func InferType(name string, values []string) ColumnType {
	for _, h := range typeHints {
		if h.re.MatchString(name) {
			return h.typ
		}
	}
	stats := Numbers(values)
	if stats.NonNumbers <= int(math.Ceil(float64(stats.Valid)*0.1)) {
		return TypeScalar
	}
	unique := len(UniqueValues(values))
	if unique <= 7 || float64(unique) < float64(len(values))/10 {
		return TypeEnum
	}
	return TypeText
}

// NumberStats is the numeric reading of a column.
type NumberStats struct {
	Values     []float64
	OK         []bool
	Valid      int
	NonNumbers int
	Min, Max   float64
}

// Numbers parses every value as a number. Commas are ignored and empty
// cells count as neither numbers nor non-numbers.
func Numbers(values []string) NumberStats {
	s := NumberStats{Values: make([]float64, len(values)), OK: make([]bool, len(values))}
	for i, v := range values {
		v = strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			s.NonNumbers++
			continue
		}
		s.Values[i], s.OK[i] = f, true
		if s.Valid == 0 || f < s.Min {
			s.Min = f
		}
		if s.Valid == 0 || f > s.Max {
			s.Max = f
		}
		s.Valid++
	}
	return s
}

// Numbers parses the column as numbers.
func (c Column) Numbers() NumberStats { return Numbers(c.Values) }

// UniqueValues returns the distinct non-empty values in first-seen order.
func UniqueValues(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Times parses every value as a date. Unparseable cells yield the zero time
// and false. Bare years are read as 1 January of that year.
func (c Column) Times() ([]time.Time, []bool) {
	out := make([]time.Time, len(c.Values))
	ok := make([]bool, len(c.Values))
	for i, v := range c.Values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if len(v) == 4 {
			if y, err := strconv.Atoi(v); err == nil {
				out[i], ok[i] = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
				continue
			}
		}
		t, err := dateparse.ParseIn(v, time.UTC)
		if err != nil {
			continue
		}
		out[i], ok[i] = t.UTC(), true
	}
	return out, ok
}

// Find returns the column with the given name.
func Find(cols []Column, name string) (Column, bool) {
	if name == "" {
		return Column{}, false
	}
	for _, c := range cols {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// OverridesFromTrait reads the "columns" trait.
func OverridesFromTrait(v any) []ColumnOverride {
	arr, _ := v.([]any)
	out := make([]ColumnOverride, 0, len(arr))
	for _, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		var o ColumnOverride
		o.Name, _ = m["name"].(string)
		o.Title, _ = m["title"].(string)
		o.Type, _ = m["type"].(string)
		o.RegionType, _ = m["regionType"].(string)
		if o.Name != "" {
			out = append(out, o)
		}
	}
	return out
}

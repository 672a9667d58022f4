package geojson

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
)

var describeSkip = map[string]bool{
	"title": true, "description": true, "marker-size": true, "marker-symbol": true,
	"marker-color": true, "stroke": true, "stroke-opacity": true, "stroke-width": true,
	"fill": true, "fill-opacity": true,
}

// Describe renders feature properties as an HTML table. Simple-style keys
// and nameProperty are skipped, underscores in keys become spaces and
// nested objects become nested tables. Keys are emitted in lexical order.
func Describe(props map[string]any, nameProperty string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		if k == nameProperty || describeSkip[k] || k == FeatureIDProp {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		var value string
		switch v := props[k].(type) {
		case nil:
			continue
		case map[string]any:
			value = Describe(v, "")
		default:
			value = formatValue(v)
		}
		b.WriteString("<tr><th>")
		b.WriteString(html.EscapeString(strings.ReplaceAll(k, "_", " ")))
		b.WriteString("</th><td>")
		b.WriteString(value)
		b.WriteString("</td></tr>")
	}
	if b.Len() == 0 {
		return ""
	}
	return `<table class="cesium-infoBox-defaultTable"><tbody>` + b.String() + "</tbody></table>"
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return html.EscapeString(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			parts[i] = formatValue(el)
		}
		return strings.Join(parts, ", ")
	}
	return html.EscapeString(strings.TrimSpace(strings.ReplaceAll(fmt.Sprint(v), "\n", " ")))
}

package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// TypeGroup is the type tag of members that hold other members.
const TypeGroup = "group"

// Format is the encoding of a catalog file.
type Format string

// Supported catalog file formats.
const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ErrFormat is returned for files whose extension names no known format.
var ErrFormat = errors.New("catalog: unknown file format")

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrFormat, path)
}

// Member is one entry of a catalog file. Traits holds every key except
// type, id and members, as JSON-like values.
type Member struct {
	Type    string
	ID      string
	Traits  map[string]any
	Members []Member
}

// Parse decodes a catalog file. The document is either a list of members
// or an object whose catalog key holds that list.
func Parse(data []byte, f Format) ([]Member, error) {
	var doc any
	var err error
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, f)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", f, err)
	}
	doc = normalise(doc)
	if obj, ok := doc.(map[string]any); ok {
		doc = obj["catalog"]
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("catalog: decode %s: no catalog member list", f)
	}
	return members(list, "catalog")
}

func members(list []any, where string) ([]Member, error) {
	out := make([]Member, 0, len(list))
	for i, raw := range list {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("catalog: %s[%d] is not an object", where, i)
		}
		m := Member{Traits: make(map[string]any, len(obj))}
		for k, v := range obj {
			switch k {
			case "type":
				m.Type, _ = v.(string)
			case "id":
				m.ID = fmt.Sprint(v)
			case "members":
				children, ok := v.([]any)
				if !ok {
					return nil, fmt.Errorf("catalog: %s[%d].members is not a list", where, i)
				}
				nested, err := members(children, fmt.Sprintf("%s[%d].members", where, i))
				if err != nil {
					return nil, err
				}
				m.Members = nested
			default:
				m.Traits[k] = v
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// Label names m in error messages.
func (m Member) Label() string {
	if n, ok := m.Traits["name"].(string); ok && n != "" {
		return n
	}
	if m.ID != "" {
		return m.ID
	}
	return "unnamed " + m.Type
}

// normalise turns decoded YAML and TOML values into the types JSON decoding
// produces: float64 numbers, string-keyed maps, []any and string times.
func normalise(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalise(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalise(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalise(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalise(e)
		}
		return out
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}
	return v
}

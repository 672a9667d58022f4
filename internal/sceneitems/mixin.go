// Package sceneitems holds the catalog items rendered as 3D scene
// primitives: 3D Tiles tilesets, I3S scene layers, glTF models and models
// converted to glTF from other formats.
package sceneitems

import (
	"context"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// Mixin carries the placement traits shared by every scene item.
type Mixin struct {
	*model.Model
}

func (m *Mixin) init(env *model.Env, schema *traits.Schema, id string,
	mapItems func(context.Context) ([]mapitem.MapItem, error), metadata func(context.Context) error) {
	m.Model = model.New(env, schema, id, model.Hooks{Metadata: metadata, MapItems: mapItems})
}

func schemaFor(typeName string, extra ...[]traits.Trait) *traits.Schema {
	sets := append([][]traits.Trait{
		traits.CatalogMember(), traits.URL(), traits.Mappable(), traits.Transformation(),
	}, extra...)
	return traits.NewSchema(typeName, sets...)
}

// URL returns the url trait.
func (m *Mixin) URL() string { return m.String("url") }

// ModelMatrix combines base, a column-major 4x4 matrix such as a tileset
// root transform, with the origin, rotation and scale traits. A nil base is
// the identity.
func (m *Mixin) ModelMatrix(base []float64) []float64 {
	pl := placement{
		lon:     numField(m.Object("origin"), "longitude"),
		lat:     numField(m.Object("origin"), "latitude"),
		height:  numField(m.Object("origin"), "height"),
		heading: numField(m.Object("rotation"), "heading"),
		pitch:   numField(m.Object("rotation"), "pitch"),
		roll:    numField(m.Object("rotation"), "roll"),
	}
	if m.IsSet("scale") {
		if s, ok := m.Number("scale"); ok {
			pl.scale = &s
		}
	}
	return modelMatrix(base, pl)
}

// primitive fills the display fields every scene primitive shares.
func (m *Mixin) primitive(typ, url string) mapitem.Primitive {
	return mapitem.Primitive{Type: typ, URL: url, Show: m.Show()}
}

func numField(obj map[string]any, key string) *float64 {
	var f float64
	switch v := obj[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return nil
	}
	return &f
}

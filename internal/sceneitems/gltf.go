package sceneitems

import (
	"context"

	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeGltf is the type tag of GltfItem.
const TypeGltf = "gltf"

// gltfTraits are shared by glTF and converted models.
func gltfTraits() []traits.Trait {
	return []traits.Trait{
		{Name: "upAxis", Kind: traits.KindEnum, Default: "Y", Enum: []string{"X", "Y", "Z"}, Doc: "Up axis of the model."},
		{Name: "forwardAxis", Kind: traits.KindEnum, Default: "Z", Enum: []string{"X", "Z"}, Doc: "Forward axis of the model."},
		{Name: "heightReference", Kind: traits.KindEnum, Default: "NONE", Enum: []string{"NONE", "CLAMP_TO_GROUND", "RELATIVE_TO_GROUND"}, Doc: "How the origin height is interpreted."},
		{Name: "shadows", Kind: traits.KindEnum, Default: "NONE", Enum: []string{"NONE", "CAST", "RECEIVE", "BOTH"}, Doc: "Shadow mode."},
	}
}

// GltfItem places a glTF model at its origin. Loading does no I/O; the
// renderer fetches the model.
type GltfItem struct {
	Mixin
}

// NewGltf returns an idle gltf item.
func NewGltf(env *model.Env, id string) *GltfItem {
	it := &GltfItem{}
	it.init(env, schemaFor(TypeGltf, gltfTraits()), id, it.loadMapItems, nil)
	return it
}

func (it *GltfItem) loadMapItems(context.Context) ([]mapitem.MapItem, error) {
	if it.URL() == "" {
		return nil, it.MissingTrait("url")
	}
	return []mapitem.MapItem{it.modelPrimitive(it.ProxyURL(it.URL()))}, nil
}

func (m *Mixin) modelPrimitive(url string) mapitem.Primitive {
	p := m.primitive(TypeGltf, url)
	p.Shadows = m.String("shadows")
	p.ModelMatrix = m.ModelMatrix(nil)
	p.Options = map[string]any{
		"upAxis":          m.String("upAxis"),
		"forwardAxis":     m.String("forwardAxis"),
		"heightReference": m.String("heightReference"),
	}
	return p
}

package sceneitems

import (
	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

// Option configures the registrations of this package.
type Option func(*options)

type options struct {
	converter Converter
}

// WithConverter sets the converter used by assimp items.
func WithConverter(c Converter) Option {
	return func(o *options) { o.converter = c }
}

// Registrations lists the item types of this package.
func Registrations(opts ...Option) []model.Registration {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return []model.Registration{
		{
			Type:       TypeTiles3D,
			New:        func(env *model.Env, id string) model.Item { return NewTiles3D(env, id) },
			LoadStrata: []string{StratumTileset},
		},
		{
			Type:       TypeI3S,
			New:        func(env *model.Env, id string) model.Item { return NewI3S(env, id) },
			LoadStrata: []string{StratumSceneServer},
		},
		{Type: TypeGltf, New: func(env *model.Env, id string) model.Item { return NewGltf(env, id) }},
		{Type: TypeAssImp, New: func(env *model.Env, id string) model.Item { return NewAssImp(env, id, o.converter) }},
	}
}

var (
	_ model.Mappable        = (*Tiles3DItem)(nil)
	_ model.Tiles3DHolder   = (*Tiles3DItem)(nil)
	_ model.URLHolder       = (*Tiles3DItem)(nil)
	_ model.Mappable        = (*I3SItem)(nil)
	_ model.Mappable        = (*GltfItem)(nil)
	_ model.Mappable        = (*AssImpItem)(nil)
	_ model.LocalDataHolder = (*AssImpItem)(nil)
	_ Converter             = (*CLIConverter)(nil)
)

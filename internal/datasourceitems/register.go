package datasourceitems

import (
	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

// Registrations lists the item types of this package.
func Registrations() []model.Registration {
	return []model.Registration{
		{Type: TypeCZML, New: func(env *model.Env, id string) model.Item { return NewCZML(env, id) }},
		{Type: TypeKML, New: func(env *model.Env, id string) model.Item { return NewKML(env, id) }},
	}
}

var (
	_ model.Mappable        = (*CZMLItem)(nil)
	_ model.URLHolder       = (*CZMLItem)(nil)
	_ model.LocalDataHolder = (*CZMLItem)(nil)
	_ model.Mappable        = (*KMLItem)(nil)
	_ model.URLHolder       = (*KMLItem)(nil)
	_ model.LocalDataHolder = (*KMLItem)(nil)
)

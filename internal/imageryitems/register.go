package imageryitems

import (
	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

// Registrations lists the item types of this package.
func Registrations() []model.Registration {
	return []model.Registration{
		{
			Type:       TypeBingMaps,
			New:        func(env *model.Env, id string) model.Item { return NewBingMaps(env, id) },
			LoadStrata: []string{StratumBing},
		},
		{
			Type:       TypeCarto,
			New:        func(env *model.Env, id string) model.Item { return NewCartoMap(env, id) },
			LoadStrata: []string{StratumCarto},
		},
		{Type: TypeMapboxStyle, New: func(env *model.Env, id string) model.Item { return NewMapboxStyle(env, id) }},
		{Type: TypeOpenStreetMap, New: func(env *model.Env, id string) model.Item { return NewOpenStreetMap(env, id) }},
		{Type: TypeTMS, New: func(env *model.Env, id string) model.Item { return NewTMS(env, id) }},
		{Type: TypeURLTemplate, New: func(env *model.Env, id string) model.Item { return NewURLTemplate(env, id) }},
		{Type: TypeCOG, New: func(env *model.Env, id string) model.Item { return NewCOG(env, id) }},
	}
}

var (
	_ model.Mappable  = (*BingMapsItem)(nil)
	_ model.Mappable  = (*CartoMapItem)(nil)
	_ model.Mappable  = (*MapboxStyleItem)(nil)
	_ model.Mappable  = (*OpenStreetMapItem)(nil)
	_ model.Mappable  = (*TMSItem)(nil)
	_ model.Mappable  = (*URLTemplateItem)(nil)
	_ model.Mappable  = (*COGItem)(nil)
	_ model.URLHolder = (*COGItem)(nil)
	_ model.URLHolder = (*URLTemplateItem)(nil)
)

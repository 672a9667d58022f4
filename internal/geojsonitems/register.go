package geojsonitems

import (
	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

// Registrations lists the item types of this package.
func Registrations() []model.Registration {
	return []model.Registration{
		{Type: TypeGeoJSON, New: func(env *model.Env, id string) model.Item { return NewGeoJSON(env, id) }},
		{Type: TypeAPIGeoJSON, New: func(env *model.Env, id string) model.Item { return NewAPIGeoJSON(env, id) }},
		{Type: TypeGPX, New: func(env *model.Env, id string) model.Item { return NewGPX(env, id) }},
		{
			Type:       TypeGeoRSS,
			New:        func(env *model.Env, id string) model.Item { return NewGeoRSS(env, id) },
			LoadStrata: []string{StratumGeoRSS},
		},
		{Type: TypeShapefile, New: func(env *model.Env, id string) model.Item { return NewShapefile(env, id) }},
		{Type: TypeGeoPackage, New: func(env *model.Env, id string) model.Item { return NewGeoPackage(env, id) }},
		{Type: TypeCartoV3, New: func(env *model.Env, id string) model.Item { return NewCartoV3(env, id) }},
		{Type: TypeSocrataMapView, New: func(env *model.Env, id string) model.Item { return NewSocrataMapView(env, id) }},
		{Type: TypeSenapsLocations, New: func(env *model.Env, id string) model.Item { return NewSenapsLocations(env, id) }},
	}
}

var (
	_ model.Mappable        = (*GeoJSONItem)(nil)
	_ model.URLHolder       = (*GeoJSONItem)(nil)
	_ model.GeoJSONHolder   = (*GeoJSONItem)(nil)
	_ model.LocalDataHolder = (*GeoJSONItem)(nil)
	_ model.Mappable        = (*APIGeoJSONItem)(nil)
	_ model.URLHolder       = (*APIGeoJSONItem)(nil)
	_ model.GeoJSONHolder   = (*APIGeoJSONItem)(nil)
	_ model.LocalDataHolder = (*GPXItem)(nil)
	_ model.GeoJSONHolder   = (*GPXItem)(nil)
	_ model.LocalDataHolder = (*GeoRSSItem)(nil)
	_ model.GeoJSONHolder   = (*GeoRSSItem)(nil)
	_ model.LocalDataHolder = (*ShapefileItem)(nil)
	_ model.LocalDataHolder = (*GeoPackageItem)(nil)
	_ model.GeoJSONHolder   = (*CartoV3Item)(nil)
	_ model.URLHolder       = (*SocrataMapViewItem)(nil)
	_ model.GeoJSONHolder   = (*SenapsLocationsItem)(nil)
)

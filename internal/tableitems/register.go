package tableitems

import (
	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

// Registrations lists the item types of this package. StratumOpenDataSoft
// follows StratumAutomaticStyles so dataset metadata outranks inferred
// styles.
func Registrations() []model.Registration {
	return []model.Registration{
		{
			Type:       TypeCSV,
			New:        func(env *model.Env, id string) model.Item { return NewCSV(env, id) },
			LoadStrata: []string{StratumAutomaticStyles},
		},
		{
			Type:       TypeAPITable,
			New:        func(env *model.Env, id string) model.Item { return NewAPITable(env, id) },
			LoadStrata: []string{StratumAutomaticStyles},
		},
		{
			Type:       TypeOpenDataSoft,
			New:        func(env *model.Env, id string) model.Item { return NewOpenDataSoft(env, id) },
			LoadStrata: []string{StratumAutomaticStyles, StratumOpenDataSoft},
		},
	}
}

var (
	_ model.Mappable        = (*CSVItem)(nil)
	_ model.TableHolder     = (*CSVItem)(nil)
	_ model.URLHolder       = (*CSVItem)(nil)
	_ model.LocalDataHolder = (*CSVItem)(nil)
	_ model.Mappable        = (*APITableItem)(nil)
	_ model.TableHolder     = (*APITableItem)(nil)
	_ model.AutoRefresher   = (*APITableItem)(nil)
	_ model.Mappable        = (*OpenDataSoftItem)(nil)
	_ model.TableHolder     = (*OpenDataSoftItem)(nil)
	_ model.URLHolder       = (*OpenDataSoftItem)(nil)
)

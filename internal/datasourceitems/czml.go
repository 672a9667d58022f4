package datasourceitems

import (
	"context"
	"fmt"

	"github.com/TerriaJS/terriajs-sub017/internal/czml"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeCZML is the type tag of CZMLItem.
const TypeCZML = "czml"

// CZMLItem loads a CZML document from czmlData, czmlString, a local file or
// url, in that order of preference.
type CZMLItem struct {
	Mixin
}

// NewCZML returns an idle czml item.
func NewCZML(env *model.Env, id string) *CZMLItem {
	it := &CZMLItem{}
	it.init(env, schemaFor(TypeCZML, []traits.Trait{
		{Name: "czmlData", Kind: traits.KindAny, Doc: "Inline CZML packets."},
		{Name: "czmlString", Kind: traits.KindString, Doc: "Inline CZML text."},
	}), id, it.load)
	return it
}

func (it *CZMLItem) load(ctx context.Context) (*mapitem.DataSource, error) {
	var (
		packets []map[string]any
		err     error
		source  string
	)
	_, local := it.localData()
	switch {
	case it.Trait("czmlData") != nil:
		packets, err = czml.Packets(it.Trait("czmlData"))
	case it.String("czmlString") != "":
		packets, err = czml.Parse([]byte(it.String("czmlString")))
	case local != nil:
		packets, err = czml.Parse(local)
	case it.URL() != "":
		source = it.URL()
		var data []byte
		if data, err = it.fetchBytes(ctx, source); err != nil {
			return nil, err
		}
		packets, err = czml.Parse(data)
	default:
		return nil, loaderr.New(loaderr.KindConfig, it.Type(), "No CZML",
			fmt.Sprintf("%s has none of `url`, `czmlData` or `czmlString`", it.Name()))
	}
	if err != nil {
		return nil, it.ParseError(err, source, "CZML")
	}
	ds, err := czml.ToDataSource(it.String("name"), packets)
	if err != nil {
		return nil, it.ParseError(err, source, "CZML")
	}
	return ds, nil
}

// Package datasourceitems holds the catalog items whose documents map
// straight onto a data source of entities: CZML and KML.
package datasourceitems

import (
	"context"
	"sync"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// Source reads the document of an item into a data source.
type Source func(ctx context.Context) (*mapitem.DataSource, error)

// Mixin publishes the data source of an item and derives its extent.
type Mixin struct {
	*model.Model

	source Source

	mu        sync.RWMutex
	ds        *mapitem.DataSource
	localName string
	local     []byte
}

func (m *Mixin) init(env *model.Env, schema *traits.Schema, id string, source Source) {
	m.source = source
	m.Model = model.New(env, schema, id, model.Hooks{MapItems: m.loadMapItems})
}

func schemaFor(typeName string, extra ...[]traits.Trait) *traits.Schema {
	sets := append([][]traits.Trait{
		traits.CatalogMember(), traits.URL(), traits.Mappable(),
	}, extra...)
	return traits.NewSchema(typeName, sets...)
}

// URL returns the url trait.
func (m *Mixin) URL() string { return m.String("url") }

// SetLocalData replaces the url with the contents of a local file.
func (m *Mixin) SetLocalData(name string, data []byte) {
	m.mu.Lock()
	m.localName, m.local = name, data
	m.mu.Unlock()
	m.InvalidateMapItems()
}

func (m *Mixin) localData() (string, []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.localName, m.local
}

// DataSource returns the data source of the last successful load.
func (m *Mixin) DataSource() *mapitem.DataSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ds
}

func (m *Mixin) loadMapItems(ctx context.Context) ([]mapitem.MapItem, error) {
	ds, err := m.source(ctx)
	if err != nil {
		return nil, err
	}
	ds.Show = m.Show()
	if b, ok := ds.Bound(); ok {
		r := mapitem.Rectangle{West: b.Min.Lon(), South: b.Min.Lat(), East: b.Max.Lon(), North: b.Max.Lat()}
		if err := m.SetTrait(strata.Underride, "rectangle", r.Trait()); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	m.ds = ds
	m.mu.Unlock()
	m.Logger().Debugw("data source ready", "entities", len(ds.Entities))
	return []mapitem.MapItem{ds}, nil
}

func (m *Mixin) fetchBytes(ctx context.Context, u string) ([]byte, error) {
	b, err := fetch.Blob(ctx, m.Env().Fetcher, fetch.Get(m.ProxyURL(u), nil))
	if err != nil {
		return nil, m.NetworkError(err, u)
	}
	return b, nil
}

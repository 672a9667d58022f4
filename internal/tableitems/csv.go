package tableitems

import (
	"bytes"
	"context"
	"sync"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/table"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeCSV is the type tag of CSVItem.
const TypeCSV = "csv"

// CSVItem loads comma-separated values from a url, an inline string or a
// local file.
type CSVItem struct {
	Mixin

	localMu sync.RWMutex
	local   []byte
}

// NewCSV returns an idle csv item.
func NewCSV(env *model.Env, id string) *CSVItem {
	it := &CSVItem{}
	it.init(env, schemaFor(TypeCSV, []traits.Trait{
		{Name: "csvString", Kind: traits.KindString, Doc: "Inline CSV text."},
	}), id, it.load, nil)
	return it
}

// URL returns the url trait.
func (it *CSVItem) URL() string { return it.String("url") }

// SetLocalData replaces the url with the contents of a local file.
func (it *CSVItem) SetLocalData(_ string, data []byte) {
	it.localMu.Lock()
	it.local = data
	it.localMu.Unlock()
	it.InvalidateMapItems()
}

func (it *CSVItem) load(ctx context.Context) (*table.Table, error) {
	it.localMu.RLock()
	data := it.local
	it.localMu.RUnlock()

	u := it.URL()
	switch {
	case it.String("csvString") != "":
		data = []byte(it.String("csvString"))
		u = ""
	case data != nil:
		u = ""
	case u != "":
		b, err := fetch.Blob(ctx, it.Env().Fetcher, fetch.Get(it.ProxyURL(u), nil))
		if err != nil {
			return nil, it.NetworkError(err, u)
		}
		data = b
	default:
		return nil, it.MissingTrait("url")
	}

	t, err := table.ParseCSV(bytes.NewReader(data))
	if err != nil {
		return nil, it.ParseError(err, u, "CSV")
	}
	return t, nil
}

package model

import (
	"context"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/TerriaJS/terriajs-sub017/internal/loader"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/table"
)

// Item is what every catalog item provides, whatever its format.
type Item interface {
	ID() string
	Type() string
	Strata() *strata.Set
	Trait(name string) any
	SetTrait(stratum, name string, value any) error
	UpdateFromJSON(stratum string, data map[string]any) error
	LoadMetadata(ctx context.Context) loader.Result
	MetadataResult() loader.Result
	IsLoadingMetadata() bool
}

// CatalogMember is an item with a user-facing name and description.
type CatalogMember interface {
	Item
	Name() string
	Description() string
}

// URLHolder is an item backed by a remote resource.
type URLHolder interface {
	URL() string
}

// Mappable is an item that produces map items.
type Mappable interface {
	Item
	LoadMapItems(ctx context.Context) loader.Result
	MapItemsResult() loader.Result
	IsLoadingMapItems() bool
	MapItems() []mapitem.MapItem
	Show() bool
	Opacity() float64
}

// TableHolder is an item whose data is a column-major table.
type TableHolder interface {
	Table() *table.Table
	TableColumns() []table.Column
}

// GeoJSONHolder is an item whose data is a feature collection.
type GeoJSONHolder interface {
	ReadyData() *geojson.FeatureCollection
}

// AutoRefresher is an item that reloads on a timer.
type AutoRefresher interface {
	RefreshInterval() (time.Duration, bool)
	Refresh(ctx context.Context) error
}

// Tiles3DHolder is an item rendered as a 3D tileset.
type Tiles3DHolder interface {
	TilesetURL() string
}

// LocalDataHolder is an item that accepts a local file in place of a URL.
type LocalDataHolder interface {
	SetLocalData(name string, data []byte)
}

// Capability names one optional interface.
type Capability string

// Capabilities an item may implement.
const (
	CapCatalogMember Capability = "catalogMember"
	CapURL           Capability = "url"
	CapMappable      Capability = "mappable"
	CapTable         Capability = "table"
	CapGeoJSON       Capability = "geojson"
	CapAutoRefresh   Capability = "autoRefresh"
	CapTiles3D       Capability = "tiles3d"
	CapLocalData     Capability = "localData"
)

// Capabilities lists the capabilities x implements, in declaration order.
func Capabilities(x any) []Capability {
	var out []Capability
	for _, c := range []Capability{
		CapCatalogMember, CapURL, CapMappable, CapTable,
		CapGeoJSON, CapAutoRefresh, CapTiles3D, CapLocalData,
	} {
		if Has(x, c) {
			out = append(out, c)
		}
	}
	return out
}

// Has reports whether x implements capability c.
func Has(x any, c Capability) bool {
	var ok bool
	switch c {
	case CapCatalogMember:
		_, ok = x.(CatalogMember)
	case CapURL:
		_, ok = x.(URLHolder)
	case CapMappable:
		_, ok = x.(Mappable)
	case CapTable:
		_, ok = x.(TableHolder)
	case CapGeoJSON:
		_, ok = x.(GeoJSONHolder)
	case CapAutoRefresh:
		_, ok = x.(AutoRefresher)
	case CapTiles3D:
		_, ok = x.(Tiles3DHolder)
	case CapLocalData:
		_, ok = x.(LocalDataHolder)
	}
	return ok
}

var (
	_ CatalogMember = (*Model)(nil)
	_ Mappable      = (*Model)(nil)
)

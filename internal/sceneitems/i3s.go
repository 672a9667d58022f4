package sceneitems

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
)

// TypeI3S is the type tag of I3SItem.
const TypeI3S = "i3s"

// StratumSceneServer is the load stratum holding the scene service
// description.
const StratumSceneServer = "sceneServer"

const wgs84WKID = 4326

// I3SItem shows the first layer of an ArcGIS SceneServer as an I3S scene
// layer.
type I3SItem struct {
	Mixin
	service *strata.Loadable

	mu       sync.RWMutex
	layerURL string
}

// NewI3S returns an idle i3s item.
func NewI3S(env *model.Env, id string) *I3SItem {
	it := &I3SItem{}
	it.init(env, schemaFor(TypeI3S), id, it.loadMapItems, it.loadMetadata)
	it.service = it.MustAttachLoadStratum(StratumSceneServer, it.describe)
	return it
}

type sceneServer struct {
	ServiceName string       `json:"serviceName"`
	Layers      []sceneLayer `json:"layers"`
}

type sceneLayer struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Href       string `json:"href"`
	LayerType  string `json:"layerType"`
	FullExtent *struct {
		XMin, YMin, XMax, YMax float64
		SpatialReference       struct {
			WKID       int `json:"wkid"`
			LatestWKID int `json:"latestWkid"`
		} `json:"spatialReference"`
	} `json:"fullExtent"`
}

func (it *I3SItem) loadMetadata(ctx context.Context) error {
	if it.URL() == "" {
		return it.MissingTrait("url")
	}
	return it.service.Load(ctx)
}

func (it *I3SItem) describe(ctx context.Context) (strata.Stratum, error) {
	u, err := fetch.WithQuery(it.URL(), map[string]string{"f": "json"})
	if err != nil {
		return nil, it.ParseError(err, it.URL(), "URL")
	}
	var svc sceneServer
	if err := fetch.DecodeJSON(ctx, it.Env().Fetcher, fetch.Get(it.ProxyURL(u), nil), &svc); err != nil {
		return nil, it.NetworkError(err, it.URL())
	}
	if len(svc.Layers) == 0 {
		return nil, loaderr.New(loaderr.KindParse, it.Type(), "Invalid scene service",
			fmt.Sprintf("the scene service of %s has no layers", it.Name()))
	}
	layer := svc.Layers[0]
	href := layer.Href
	if href == "" {
		href = "layers/" + strconv.Itoa(layer.ID)
	}
	it.mu.Lock()
	it.layerURL = strings.TrimRight(it.URL(), "/") + "/" + strings.TrimLeft(href, "./")
	it.mu.Unlock()

	v := strata.Values{"name": nilIfEmpty(layer.Name)}
	if layer.Name == "" {
		v["name"] = nilIfEmpty(svc.ServiceName)
	}
	if ext := layer.FullExtent; ext != nil {
		sr := ext.SpatialReference
		if sr.WKID == wgs84WKID || sr.LatestWKID == wgs84WKID {
			v["rectangle"] = mapitem.Rectangle{West: ext.XMin, South: ext.YMin, East: ext.XMax, North: ext.YMax}.Trait()
		}
	}
	return v, nil
}

// LayerURL returns the url of the scene layer, once metadata has loaded.
func (it *I3SItem) LayerURL() string {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.layerURL
}

func (it *I3SItem) loadMapItems(context.Context) ([]mapitem.MapItem, error) {
	p := it.primitive(TypeI3S, it.ProxyURL(it.LayerURL()))
	p.ModelMatrix = it.ModelMatrix(nil)
	return []mapitem.MapItem{p}, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

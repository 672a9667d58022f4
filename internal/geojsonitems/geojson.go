package geojsonitems

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/datapath"
	gj "github.com/TerriaJS/terriajs-sub017/internal/geojson"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeGeoJSON is the type tag of GeoJSONItem.
const TypeGeoJSON = "geojson"

// GeoJSONItem loads GeoJSON from inline data, a local file, a URL or several
// URLs. Zip archives are unpacked and their first .geojson or .json entry
// is used.
type GeoJSONItem struct {
	Mixin

	localMu   sync.RWMutex
	localName string
	local     []byte
}

// NewGeoJSON returns an idle geojson item.
func NewGeoJSON(env *model.Env, id string) *GeoJSONItem {
	it := &GeoJSONItem{}
	it.init(env, schemaFor(TypeGeoJSON, []traits.Trait{
		{Name: "urls", Kind: traits.KindObjectArray, Doc: "Several sources, each {url, responseDataPath}, merged into one collection."},
	}), id, it.load, nil)
	return it
}

// URL returns the url trait.
func (it *GeoJSONItem) URL() string { return it.String("url") }

// SetLocalData replaces the url with the contents of a local file.
func (it *GeoJSONItem) SetLocalData(name string, data []byte) {
	it.localMu.Lock()
	it.localName, it.local = name, data
	it.localMu.Unlock()
	it.InvalidateMapItems()
}

func (it *GeoJSONItem) localData() (string, []byte) {
	it.localMu.RLock()
	defer it.localMu.RUnlock()
	return it.localName, it.local
}

func (it *GeoJSONItem) load(ctx context.Context) ([]*geojson.FeatureCollection, error) {
	if name, data := it.localData(); data != nil {
		return one(it.decode(name, data, it.String("responseDataPath")))
	}
	if it.IsSet("geoJsonData") {
		return one(it.collection(it.Trait("geoJsonData"), ""))
	}
	if s := it.String("geoJsonString"); s != "" {
		return one(it.decode("", []byte(s), ""))
	}
	if u := it.URL(); u != "" {
		data, err := it.fetchBytes(ctx, u)
		if err != nil {
			return nil, err
		}
		return one(it.decode(u, data, it.String("responseDataPath")))
	}
	if sources := it.ObjectArray("urls"); len(sources) > 0 {
		return it.loadMany(ctx, sources)
	}
	return nil, it.MissingTrait("url")
}

// loadMany fetches every source concurrently. Any failure fails the whole
// load with one combined error.
func (it *GeoJSONItem) loadMany(ctx context.Context, sources []map[string]any) ([]*geojson.FeatureCollection, error) {
	out := make([]*geojson.FeatureCollection, len(sources))
	errs := make([]error, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			u, _ := src["url"].(string)
			if u == "" {
				errs[i] = it.MissingTrait(fmt.Sprintf("urls[%d].url", i))
				return nil
			}
			dataPath, _ := src["responseDataPath"].(string)
			data, err := it.fetchBytes(ctx, u)
			if err != nil {
				errs[i] = err
				return nil
			}
			out[i], errs[i] = it.decode(u, data, dataPath)
			return nil
		})
	}
	_ = g.Wait()
	if err := loaderr.Combine(it.Type(), "Failed to load GeoJSON sources", errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// decode parses a payload, unzipping it first when needed. With a
// responseDataPath the collection is read from inside the JSON document and
// the wrapper's scalar members become properties of every feature.
func (it *GeoJSONItem) decode(source string, data []byte, dataPath string) (*geojson.FeatureCollection, error) {
	if isZip(source, data) {
		a, err := openArchive(data)
		if err != nil {
			return nil, it.ParseError(err, source, "zip archive")
		}
		if data, err = a.read(".geojson", ".json"); err != nil {
			return nil, it.ParseError(err, source, "zip archive")
		}
	}
	if dataPath == "" {
		fc, err := gj.FromBytes(data)
		if err != nil {
			return nil, it.ParseError(err, source, "GeoJSON")
		}
		return fc, nil
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, it.ParseError(err, source, "JSON")
	}
	return extract(&it.Mixin, doc, dataPath, source)
}

// extract reads the collection at dataPath of doc and decorates it with
// the wrapper's scalar members.
func extract(m *Mixin, doc any, dataPath, source string) (*geojson.FeatureCollection, error) {
	p, err := datapath.Compile(dataPath)
	if err != nil {
		return nil, loaderr.New(loaderr.KindConfig, m.Type(), "Invalid configuration",
			fmt.Sprintf("response path %q of %s: %v", dataPath, m.Name(), err))
	}
	inner := p.Eval(doc)
	if inner == nil {
		return nil, loaderr.Parse(m.Type(), "Invalid GeoJSON",
			fmt.Sprintf("%s has no GeoJSON at %q", describeURL(source), dataPath), nil)
	}
	fc, err := m.collection(inner, source)
	if err != nil {
		return nil, err
	}
	gj.AttachProperties(fc, wrapperProperties(doc))
	return fc, nil
}

// wrapperProperties returns the scalar top-level members of doc.
func wrapperProperties(doc any) map[string]any {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any)
	for k, v := range obj {
		switch v.(type) {
		case map[string]any, []any:
		default:
			out[k] = v
		}
	}
	return out
}

func describeURL(u string) string {
	if u == "" {
		return "inline data"
	}
	return u
}

package sceneitems

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeAssImp is the type tag of AssImpItem.
const TypeAssImp = "assimp"

const zipMagic = "PK\x03\x04"

// AssImpItem converts models in formats such as Collada, FBX or OBJ to glTF
// and places the result like a glTF item. Inputs come from url or urls; zip
// archives are unpacked first.
type AssImpItem struct {
	Mixin

	converter Converter

	mu        sync.RWMutex
	localName string
	local     []byte
	modelURL  string
	document  []byte
}

// NewAssImp returns an idle assimp item converting with conv.
func NewAssImp(env *model.Env, id string, conv Converter) *AssImpItem {
	it := &AssImpItem{converter: conv}
	it.init(env, schemaFor(TypeAssImp, gltfTraits(), []traits.Trait{
		{Name: "urls", Kind: traits.KindStringArray, Doc: "Model files and the files they reference."},
		{Name: "baseUrl", Kind: traits.KindString, Doc: "Base for resolving textures referenced by the model."},
	}), id, it.loadMapItems, nil)
	return it
}

// SetLocalData replaces the urls with a local archive.
func (it *AssImpItem) SetLocalData(name string, data []byte) {
	it.mu.Lock()
	it.localName, it.local = name, data
	it.mu.Unlock()
	it.InvalidateMapItems()
}

// Document returns the converted glTF document after a successful load.
func (it *AssImpItem) Document() []byte {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.document
}

// source is one url or local archive to gather.
type source struct {
	url   string
	data  []byte
	local bool
}

// gathered holds the converter inputs and the url each file name maps to.
type gathered struct {
	files    [][]File
	dataURLs map[string]string
}

func (it *AssImpItem) sources() []source {
	it.mu.RLock()
	localName, local := it.localName, it.local
	it.mu.RUnlock()
	if local != nil {
		return []source{{url: localName, data: local, local: true}}
	}
	urls := it.StringArray("urls")
	if len(urls) == 0 && it.URL() != "" {
		urls = []string{it.URL()}
	}
	out := make([]source, len(urls))
	for i, u := range urls {
		out[i] = source{url: u}
	}
	return out
}

// baseURL returns the baseUrl trait, or the directory of a single url.
func (it *AssImpItem) baseURL(srcs []source) string {
	if b := it.String("baseUrl"); b != "" {
		return b
	}
	if len(srcs) != 1 || srcs[0].local {
		return ""
	}
	u, err := url.Parse(srcs[0].url)
	if err != nil || u.Scheme == "" {
		return ""
	}
	u.Path = path.Dir(u.Path) + "/"
	u.RawQuery, u.Fragment = "", ""
	return u.String()
}

func (it *AssImpItem) gather(ctx context.Context, srcs []source) (gathered, error) {
	g := gathered{files: make([][]File, len(srcs)), dataURLs: map[string]string{}}
	named := make([]map[string]string, len(srcs))
	eg, gctx := errgroup.WithContext(ctx)
	for i, src := range srcs {
		eg.Go(func() error {
			data := src.data
			if !src.local {
				var err error
				if data, err = fetch.Blob(gctx, it.Env().Fetcher, fetch.Get(it.ProxyURL(src.url), nil)); err != nil {
					return it.NetworkError(err, src.url)
				}
			}
			if src.local || isZip(src.url, data) {
				files, urls, err := unzip(data)
				if err != nil {
					return it.ParseError(err, src.url, "zip archive")
				}
				g.files[i], named[i] = files, urls
				return nil
			}
			name := path.Base(urlPath(src.url))
			g.files[i] = []File{{Name: name, Data: data}}
			named[i] = map[string]string{name: src.url}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return gathered{}, err
	}
	for _, m := range named {
		for k, v := range m {
			g.dataURLs[k] = v
		}
	}
	return g, nil
}

// unzip returns the files of an archive and a data url per file. When the
// first entry is a directory the other names are mapped relative to it.
func unzip(data []byte) ([]File, map[string]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("open zip: %w", err)
	}
	var (
		files   []File
		rootDir string
	)
	urls := map[string]string{}
	for i, f := range r.File {
		if f.FileInfo().IsDir() {
			if i == 0 {
				rootDir = f.Name
			}
			continue
		}
		if strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		files = append(files, File{Name: f.Name, Data: b})
		urls[strings.TrimPrefix(f.Name, rootDir)] = fetch.DataURL(f.Name, b)
	}
	return files, urls, nil
}

func (it *AssImpItem) loadMapItems(ctx context.Context) ([]mapitem.MapItem, error) {
	if it.converter == nil {
		return nil, loaderr.New(loaderr.KindConfig, it.Type(), "No model converter",
			fmt.Sprintf("%s needs a model converter, and none is configured", it.Name()))
	}
	srcs := it.sources()
	if len(srcs) == 0 {
		return nil, it.MissingTrait("url")
	}
	g, err := it.gather(ctx, srcs)
	if err != nil {
		return nil, err
	}
	var inputs []File
	for _, fs := range g.files {
		inputs = append(inputs, fs...)
	}
	outputs, err := it.converter.Convert(ctx, inputs)
	if err == nil && len(outputs) == 0 {
		err = fmt.Errorf("converter produced no files")
	}
	if err != nil {
		return nil, loaderr.Parse(it.Type(), "Failed to convert files to glTF",
			fmt.Sprintf("the files of %s could not be converted", it.Name()), err)
	}

	fx := fixer{dataURLs: g.dataURLs, baseURL: it.baseURL(srcs), logger: it.Logger()}
	doc, err := fx.apply(outputs)
	if err != nil {
		return nil, it.ParseError(err, "", "glTF")
	}
	modelURL := fetch.DataURL("model.gltf", doc)
	it.mu.Lock()
	it.modelURL, it.document = modelURL, doc
	it.mu.Unlock()

	items := []mapitem.MapItem{it.modelPrimitive(modelURL)}
	if len(fx.unsupported) > 0 {
		return items, loaderr.New(loaderr.KindParse, it.Type(), "Unsupported texture formats",
			fmt.Sprintf("%s has unsupported texture formats for the following: %s. The model may not display correctly. Supported formats: %s",
				it.Name(), strings.Join(fx.unsupported, ", "), strings.Join(textureExts, ", "))).AsWarning()
	}
	return items, nil
}

func isZip(name string, data []byte) bool {
	return bytes.HasPrefix(data, []byte(zipMagic)) || strings.EqualFold(path.Ext(urlPath(name)), ".zip")
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	return raw
}

package datasourceitems

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/beevik/etree"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeKML is the type tag of KMLItem.
const TypeKML = "kml"

const zipMagic = "PK\x03\x04"

// errNoKML is returned for a KMZ archive without a KML document.
var errNoKML = errors.New("archive holds no .kml document")

// KMLItem loads a KML document, or a KMZ archive holding one, from
// kmlString, a local file or url. Files referenced from inside a KMZ are
// embedded as data URLs.
type KMLItem struct {
	Mixin
}

// NewKML returns an idle kml item.
func NewKML(env *model.Env, id string) *KMLItem {
	it := &KMLItem{}
	it.init(env, schemaFor(TypeKML, []traits.Trait{
		{Name: "kmlString", Kind: traits.KindString, Doc: "Inline KML text."},
	}), id, it.load)
	return it
}

func (it *KMLItem) load(ctx context.Context) (*mapitem.DataSource, error) {
	localName, local := it.localData()
	var (
		name, source string
		data         []byte
	)
	switch {
	case it.String("kmlString") != "":
		data = []byte(it.String("kmlString"))
	case local != nil:
		name, data = localName, local
	case it.URL() != "":
		name, source = it.URL(), it.URL()
		var err error
		if data, err = it.fetchBytes(ctx, source); err != nil {
			return nil, err
		}
	default:
		return nil, loaderr.New(loaderr.KindConfig, it.Type(), "No KML",
			fmt.Sprintf("%s has none of `url` or `kmlString`", it.Name()))
	}

	resolve := func(href string) string { return fetch.Resolve(source, href) }
	if isKMZ(name, data) {
		doc, files, err := unpackKMZ(data)
		if err != nil {
			return nil, it.ParseError(err, source, "KMZ")
		}
		data = doc
		resolve = func(href string) string {
			if b, ok := files[strings.TrimPrefix(href, "./")]; ok {
				return fetch.DataURL(href, b)
			}
			return fetch.Resolve(source, href)
		}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(bytes.TrimSpace(data)); err != nil {
		return nil, it.ParseError(err, source, "KML")
	}
	ds, err := parseKML(doc, resolve)
	if err != nil {
		return nil, it.ParseError(err, source, "KML")
	}
	if n := it.String("name"); n != "" {
		ds.Name = n
	}
	return ds, nil
}

func isKMZ(name string, data []byte) bool {
	if bytes.HasPrefix(data, []byte(zipMagic)) {
		return true
	}
	if u, err := url.Parse(name); err == nil {
		name = u.Path
	}
	return strings.EqualFold(path.Ext(name), ".kmz")
}

// unpackKMZ returns the first KML document of an archive and every other
// file by name.
func unpackKMZ(data []byte) ([]byte, map[string][]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("open zip: %w", err)
	}
	var doc []byte
	files := map[string][]byte{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
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
		if doc == nil && strings.EqualFold(path.Ext(f.Name), ".kml") {
			doc = b
			continue
		}
		files[f.Name] = b
	}
	if doc == nil {
		return nil, nil, errNoKML
	}
	return doc, files, nil
}

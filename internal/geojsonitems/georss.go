package geojsonitems

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/paulmach/orb/geojson"

	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeGeoRSS is the type tag of GeoRSSItem.
const TypeGeoRSS = "georss"

// StratumGeoRSS is the load stratum holding feed metadata.
const StratumGeoRSS = "georss"

// errInvalidFeed is returned for XML that is neither Atom nor RSS 2.0.
var errInvalidFeed = errors.New("document is not valid")

// GeoRSSItem loads an Atom or RSS 2.0 feed whose entries carry GeoRSS or
// W3C geo positions. Feed metadata is published in the georss stratum.
type GeoRSSItem struct {
	Mixin
	meta *strata.Loadable

	localMu sync.RWMutex
	local   []byte
	parsed  *geojson.FeatureCollection
}

// NewGeoRSS returns an idle georss item.
func NewGeoRSS(env *model.Env, id string) *GeoRSSItem {
	it := &GeoRSSItem{}
	it.init(env, schemaFor(TypeGeoRSS, []traits.Trait{
		{Name: "geoRssString", Kind: traits.KindString, Doc: "Inline GeoRSS document."},
	}), id, it.load, nil)
	it.meta = it.MustAttachLoadStratum(StratumGeoRSS, it.readFeed)
	return it
}

// FeedStratum returns the stratum holding the feed metadata.
func (it *GeoRSSItem) FeedStratum() *strata.Loadable { return it.meta }

// URL returns the url trait.
func (it *GeoRSSItem) URL() string { return it.String("url") }

// SetLocalData replaces the url with the contents of a local file.
func (it *GeoRSSItem) SetLocalData(_ string, data []byte) {
	it.localMu.Lock()
	it.local = data
	it.localMu.Unlock()
	it.InvalidateMapItems()
}

// load re-reads the feed on every map-items run; a failed run keeps the
// previous feed metadata.
func (it *GeoRSSItem) load(ctx context.Context) ([]*geojson.FeatureCollection, error) {
	if err := it.meta.Reload(ctx); err != nil {
		return nil, err
	}
	it.localMu.RLock()
	fc := it.parsed
	it.localMu.RUnlock()
	it.Logger().Debugw("parsed feed", "entries", describeCount(len(fc.Features), "entry"))
	return one(fc, nil)
}

func (it *GeoRSSItem) readFeed(ctx context.Context) (strata.Stratum, error) {
	it.localMu.RLock()
	data := it.local
	it.localMu.RUnlock()

	u := it.URL()
	switch {
	case it.String("geoRssString") != "":
		data = []byte(it.String("geoRssString"))
	case data != nil:
	case u != "":
		var err error
		if data, err = it.fetchBytes(ctx, u); err != nil {
			return nil, err
		}
	default:
		return nil, loaderr.Network(it.Type(), nil, "Error loading GeoRSS",
			"Could not load the GeoRSS feed: no url, file or inline document was given.")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(bytes.TrimSpace(data)); err != nil {
		return nil, it.ParseError(err, u, "GeoRSS")
	}
	f, err := parseFeed(doc)
	if err != nil {
		return nil, it.ParseError(err, u, "GeoRSS")
	}
	it.localMu.Lock()
	it.parsed = f.fc
	it.localMu.Unlock()
	return f.meta.stratum(u), nil
}

type feedAuthor struct {
	name, email, link string
}

type feedMeta struct {
	id, title, subtitle, description string
	categories, links                []string
	updated, rights                  string
	author                           feedAuthor
}

type feed struct {
	meta feedMeta
	fc   *geojson.FeatureCollection
}

// parseFeed reads an Atom feed or an RSS 2.0 channel.
func parseFeed(doc *etree.Document) (*feed, error) {
	root := doc.Root()
	if root == nil {
		return nil, errInvalidFeed
	}
	var container *etree.Element
	var entryTag string
	switch {
	case strings.Contains(root.Tag, "feed"):
		container, entryTag = root, "entry"
	case root.Tag == "rss":
		container, entryTag = root.SelectElement("channel"), "item"
	}
	if container == nil {
		return nil, errInvalidFeed
	}
	f := &feed{meta: parseMeta(container), fc: geojson.NewFeatureCollection()}
	for _, el := range container.SelectElements(entryTag) {
		g, ok := entryGeometry(el)
		if !ok {
			continue
		}
		feat := geojson.NewFeature(g)
		entryProperties(el, feat.Properties)
		f.fc.Append(feat)
	}
	return f, nil
}

func parseMeta(container *etree.Element) feedMeta {
	var m feedMeta
	for _, el := range container.ChildElements() {
		text := strings.TrimSpace(el.Text())
		switch el.Tag {
		case "id":
			m.id = text
		case "title":
			m.title = text
		case "subtitle":
			m.subtitle = text
		case "description":
			m.description = text
		case "category":
			if term := el.SelectAttrValue("term", text); term != "" {
				m.categories = append(m.categories, term)
			}
		case "link":
			if href := el.SelectAttrValue("href", text); href != "" {
				m.links = append(m.links, href)
			}
		case "updated", "lastBuildDate", "pubDate":
			if m.updated == "" {
				m.updated = text
			}
		case "rights", "copyright":
			m.rights = text
		case "author", "managingEditor":
			m.author = parseAuthor(el)
		}
	}
	return m
}

func parseAuthor(el *etree.Element) feedAuthor {
	children := el.ChildElements()
	if len(children) == 0 {
		return feedAuthor{name: strings.TrimSpace(el.Text())}
	}
	var a feedAuthor
	for _, c := range children {
		switch c.Tag {
		case "name":
			a.name = strings.TrimSpace(c.Text())
		case "email":
			a.email = strings.TrimSpace(c.Text())
		case "link", "uri":
			a.link = strings.TrimSpace(c.Text())
		}
	}
	return a
}

// stratum is the georss load stratum. Untitled feeds, or feeds titled with
// their own URL, are named after the file.
func (m feedMeta) stratum(u string) strata.Values {
	title := m.title
	if (title == "" || title == u) && u != "" {
		title = path.Base(strings.SplitN(u, "?", 2)[0])
	}
	values := strata.Values{}
	if title != "" {
		values["name"] = strings.ReplaceAll(title, "_", " ")
	}
	if m.author.name != "" {
		values["dataCustodian"] = m.author.name
	}
	setInfo(values,
		[2]string{"Subtitle", m.subtitle},
		[2]string{"Updated", m.updated},
		[2]string{"Category", strings.Join(m.categories, ", ")},
		[2]string{"Description", m.description},
		[2]string{"Copyright Text", m.rights},
		[2]string{"Author", m.author.name},
		[2]string{"Link", strings.Join(m.links, ", ")},
	)
	return values
}

// entryProperties copies the descriptive children of an entry.
func entryProperties(el *etree.Element, props geojson.Properties) {
	for _, c := range el.ChildElements() {
		text := strings.TrimSpace(c.Text())
		switch c.Tag {
		case "title", "id", "guid", "updated", "published", "pubDate":
			setNonEmpty(props, c.Tag, text)
		case "summary", "content", "description":
			setNonEmpty(props, "description", text)
		case "link":
			setNonEmpty(props, "link", c.SelectAttrValue("href", text))
		case "category":
			setNonEmpty(props, "category", c.SelectAttrValue("term", text))
		}
	}
}

// Package region holds the region provider registry read from a
// regionMapping.json document. Table columns whose names match a region
// alias are treated as region columns and rendered through the provider's
// vector tile server.
package region

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
)

//go:embed regionMapping.json
var builtinMapping []byte

// ErrUnknown is returned for a region type the registry does not define.
var ErrUnknown = errors.New("region: unknown region type")

// Definition describes one region type.
type Definition struct {
	ID            string    `json:"-"`
	LayerName     string    `json:"layerName"`
	Server        string    `json:"server"`
	ServerType    string    `json:"serverType"`
	RegionProp    string    `json:"regionProp"`
	NameProp      string    `json:"nameProp"`
	UniqueIDProp  string    `json:"uniqueIdProp"`
	Aliases       []string  `json:"aliases"`
	Description   string    `json:"description"`
	BBox          []float64 `json:"bbox"`
	Digits        int       `json:"digits"`
	ServerMinZoom int       `json:"serverMinZoom"`
	ServerMaxZoom int       `json:"serverMaxZoom"`
}

// Rectangle returns the definition's bounding box in degrees.
func (d Definition) Rectangle() (mapitem.Rectangle, bool) {
	if len(d.BBox) != 4 {
		return mapitem.Rectangle{}, false
	}
	return mapitem.Rectangle{West: d.BBox[0], South: d.BBox[1], East: d.BBox[2], North: d.BBox[3]}, true
}

type document struct {
	RegionWmsMap map[string]Definition `json:"regionWmsMap"`
}

// Parse decodes a regionMapping.json document. Definitions are returned
// sorted by ID.
func Parse(data []byte) ([]Definition, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("region: decode mapping: %w", err)
	}
	if doc.RegionWmsMap == nil {
		return nil, errors.New("region: mapping has no regionWmsMap")
	}
	defs := make([]Definition, 0, len(doc.RegionWmsMap))
	for id, d := range doc.RegionWmsMap {
		d.ID = id
		defs = append(defs, d)
	}
	slices.SortFunc(defs, func(a, b Definition) int { return strings.Compare(a.ID, b.ID) })
	return defs, nil
}

// Registry resolves region types. Definitions are fetched on the first
// Load; concurrent callers share that fetch. A failed fetch is retried on
// the next Load.
type Registry struct {
	fetcher fetch.Fetcher
	url     string
	logger  *zap.SugaredLogger
	group   singleflight.Group

	mu      sync.RWMutex
	defs    []Definition
	byAlias map[string]int
	loaded  bool
}

// New returns a registry reading url through f. An empty url selects the
// built-in mapping.
func New(f fetch.Fetcher, url string, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{fetcher: f, url: url, logger: logger}
}

// FromDefinitions returns a registry that is already loaded.
func FromDefinitions(defs []Definition) *Registry {
	r := &Registry{logger: zap.NewNop().Sugar()}
	r.install(defs)
	return r
}

// Load fetches and indexes the mapping unless that already happened.
func (r *Registry) Load(ctx context.Context) error {
	if r.Loaded() {
		return nil
	}
	_, err, _ := r.group.Do("load", func() (any, error) {
		if r.Loaded() {
			return nil, nil
		}
		data := builtinMapping
		if r.url != "" {
			b, err := fetch.Blob(ctx, r.fetcher, fetch.Get(r.url, nil))
			if err != nil {
				return nil, fmt.Errorf("region: fetch %s: %w", r.url, err)
			}
			data = b
		}
		defs, err := Parse(data)
		if err != nil {
			return nil, err
		}
		r.install(defs)
		r.logger.Debugw("region mapping loaded", "url", r.url, "types", len(defs))
		return nil, nil
	})
	return err
}

func (r *Registry) install(defs []Definition) {
	byAlias := make(map[string]int)
	for i, d := range defs {
		// The first definition claiming an alias keeps it.
		for _, a := range append([]string{d.ID}, d.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(a))
			if _, taken := byAlias[key]; !taken && key != "" {
				byAlias[key] = i
			}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs, r.byAlias, r.loaded = defs, byAlias, true
}

// Loaded reports whether definitions are available.
func (r *Registry) Loaded() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// MatchColumn returns the region type whose ID or alias equals the column
// name, ignoring case. It never matches before Load.
func (r *Registry) MatchColumn(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byAlias[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return r.defs[i].ID, true
}

// Lookup returns the definition for a region type.
func (r *Registry) Lookup(id string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.defs {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Definitions returns every definition sorted by ID.
func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.defs)
}

// Provider builds the imagery provider that colours regions of type id.
// colors maps region codes to CSS colours.
func (r *Registry) Provider(id string, colors map[string]string) (*mapitem.RegionProvider, error) {
	d, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	return &mapitem.RegionProvider{
		RegionType: d.ID,
		Server:     d.Server,
		Layer:      d.LayerName,
		RegionProp: d.RegionProp,
		Colors:     colors,
		Credit:     d.Description,
	}, nil
}

// Normalize returns the canonical form of a region code for d: numeric
// codes are left-padded to Digits, other codes are upper-cased.
func (d Definition) Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if d.Digits > 0 && strings.Trim(code, "0123456789") == "" && len(code) < d.Digits {
		return strings.Repeat("0", d.Digits-len(code)) + code
	}
	return strings.ToUpper(code)
}

// Package tableitems holds the catalog items whose data is a column-major
// table: CSV files, JSON APIs and OpenDataSoft datasets. They share Mixin,
// which infers column roles, publishes the automatic styles stratum and
// renders the active style as points or regions.
package tableitems

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/araddon/dateparse"

	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/table"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// StratumAutomaticStyles is the load stratum holding styles inferred from
// the table columns.
const StratumAutomaticStyles = "tableAutomaticStyles"

// Source produces the table of an item. A nil table means no data.
type Source func(ctx context.Context) (*table.Table, error)

// Mixin is the shared implementation of table-backed items.
type Mixin struct {
	*model.Model

	source Source

	mu   sync.RWMutex
	tbl  *table.Table
	cols []table.Column
}

func (m *Mixin) init(env *model.Env, schema *traits.Schema, id string, source Source, metadata func(context.Context) error) {
	m.source = source
	m.Model = model.New(env, schema, id, model.Hooks{Metadata: metadata, MapItems: m.loadMapItems})
}

func schemaFor(typeName string, extra ...[]traits.Trait) *traits.Schema {
	sets := append([][]traits.Trait{
		traits.CatalogMember(), traits.URL(), traits.Mappable(), traits.Table(),
	}, extra...)
	return traits.NewSchema(typeName, sets...)
}

// Table returns the table of the last successful load.
func (m *Mixin) Table() *table.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tbl
}

// TableColumns returns the column metadata of the last successful load.
func (m *Mixin) TableColumns() []table.Column {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cols
}

// ColumnMajor returns a copy of the loaded data, header first in every
// column, or nil before a load.
func (m *Mixin) ColumnMajor() [][]string {
	if t := m.Table(); t != nil {
		return t.ColumnMajor()
	}
	return nil
}

// ActiveStyle resolves activeStyle over defaultStyle against the loaded
// columns.
func (m *Mixin) ActiveStyle() table.Style {
	var styles []any
	for _, s := range m.ObjectArray("styles") {
		styles = append(styles, s)
	}
	return table.ResolveStyle(m.Object("defaultStyle"), styles, m.String("activeStyle")).Validate(m.TableColumns())
}

// DiscreteTimes returns the distinct times of the active style's time
// column.
func (m *Mixin) DiscreteTimes() []time.Time {
	s := m.ActiveStyle()
	if !s.IsTimeVarying() {
		return nil
	}
	return table.DiscreteTimes(m.TableColumns(), s.TimeColumn)
}

func (m *Mixin) loadMapItems(ctx context.Context) ([]mapitem.MapItem, error) {
	if err := m.Env().Regions.Load(ctx); err != nil {
		return nil, loaderr.Network(m.Type(), err, "Region mapping unavailable",
			"region mapping definitions could not be loaded")
	}
	t, err := m.source(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		m.setTable(nil, nil)
		return nil, nil
	}
	if m.Bool("removeDuplicateRows") {
		if n := t.RemoveDuplicateRows(); n > 0 {
			m.Logger().Debugw("removed duplicate rows", "rows", n)
		}
	}
	cols := t.Columns(table.OverridesFromTrait(m.Trait("columns")), m.Env().Regions)
	if err := m.Strata().Attach(StratumAutomaticStyles, strata.Values(table.AutomaticStyles(cols))); err != nil {
		return nil, err
	}
	m.setTable(t, cols)

	s := m.ActiveStyle()
	if r, ok := table.Extent(cols, s); ok {
		if err := m.SetTrait(strata.Underride, "rectangle", r.Trait()); err != nil {
			return nil, err
		}
	}
	m.Logger().Debugw("table loaded", "rows", t.NumRows(), "columns", t.NumColumns(), "style", s.ID)

	switch {
	case s.IsRegions():
		p, err := m.regionProvider(t, cols, s)
		if err != nil {
			return nil, err
		}
		return []mapitem.MapItem{m.ImageryParts(p)}, nil
	case s.IsPoints():
		ds := table.PointDataSource(m.Name(), t, cols, s)
		ds.Show = m.Show()
		return []mapitem.MapItem{ds}, nil
	}
	return nil, nil
}

func (m *Mixin) setTable(t *table.Table, cols []table.Column) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tbl, m.cols = t, cols
}

// regionProvider colours each region by its row's value. With a time
// column and a currentTime only rows available at that time count.
func (m *Mixin) regionProvider(t *table.Table, cols []table.Column, s table.Style) (*mapitem.RegionProvider, error) {
	col, _ := table.Find(cols, s.RegionColumn)
	regions := m.Env().Regions
	def, ok := regions.Lookup(col.RegionType)
	if !ok {
		return nil, loaderr.New(loaderr.KindConfig, m.Type(), "Unknown region type",
			fmt.Sprintf("column %q is mapped to region type %q, which is not defined", col.Name, col.RegionType))
	}

	var intervals []*mapitem.TimeInterval
	var now time.Time
	if ct := m.String("currentTime"); ct != "" && s.IsTimeVarying() {
		parsed, err := dateparse.ParseAny(ct)
		if err != nil {
			return nil, m.ParseError(err, "", "currentTime")
		}
		now = parsed
		intervals = table.TimeIntervals(cols, s, t.NumRows())
	}

	cmap := table.NewColorMap(cols, s, m.Name())
	values := t.Values(t.Index(s.ColorColumn))
	colors := make(map[string]string, len(col.Values))
	for r, code := range col.Values {
		key := def.Normalize(code)
		if key == "" {
			continue
		}
		if intervals != nil {
			if iv := intervals[r]; iv == nil || !iv.Contains(now) {
				continue
			}
		}
		cell := ""
		if r < len(values) {
			cell = values[r]
		}
		colors[key] = cmap.Color(cell)
	}
	return regions.Provider(def.ID, colors)
}

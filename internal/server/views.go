package server

import (
	"errors"

	"github.com/TerriaJS/terriajs-sub017/internal/loader"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

type itemSummary struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Name         string             `json:"name"`
	Capabilities []model.Capability `json:"capabilities"`
}

type traitValue struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Value   any    `json:"value"`
	Stratum string `json:"stratum,omitempty"`
}

type itemDetail struct {
	itemSummary
	Description string       `json:"description,omitempty"`
	Traits      []traitValue `json:"traits"`
}

type errorView struct {
	Kind     string   `json:"kind"`
	Severity string   `json:"severity"`
	Title    string   `json:"title"`
	Messages []string `json:"messages"`
}

type resultView struct {
	OK    bool       `json:"ok"`
	Error *errorView `json:"error,omitempty"`
}

type loadView struct {
	Metadata resultView  `json:"metadata"`
	MapItems *resultView `json:"mapItems,omitempty"`
}

type mapItemView struct {
	Kind mapitem.Kind    `json:"kind"`
	Item mapitem.MapItem `json:"item"`
}

type columnView struct {
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	Type       string `json:"type"`
	RegionType string `json:"regionType,omitempty"`
}

type tableView struct {
	Columns []columnView `json:"columns"`
	Rows    int          `json:"rows"`
	Data    [][]string   `json:"data"`
}

// schemaHolder is satisfied by every item built on model.Model.
type schemaHolder interface {
	Schema() *traits.Schema
}

func summary(it model.Item) itemSummary {
	v := itemSummary{ID: it.ID(), Type: it.Type(), Name: it.ID(), Capabilities: model.Capabilities(it)}
	if cm, ok := it.(model.CatalogMember); ok {
		v.Name = cm.Name()
	}
	return v
}

func detail(it model.Item) itemDetail {
	v := itemDetail{itemSummary: summary(it)}
	if cm, ok := it.(model.CatalogMember); ok {
		v.Description = cm.Description()
	}
	sh, ok := it.(schemaHolder)
	if !ok {
		return v
	}
	schema := sh.Schema()
	for _, name := range schema.Names() {
		t, _ := schema.Lookup(name)
		tv := traitValue{Name: name, Kind: t.Kind.String(), Value: it.Trait(name)}
		tv.Stratum, _ = it.Strata().Which(name)
		v.Traits = append(v.Traits, tv)
	}
	return v
}

func result(r loader.Result) resultView {
	if r.Err == nil {
		return resultView{OK: true}
	}
	e := loaderr.From(r.Err, "server", "Load failed")
	severity := "error"
	if e.Severity == loaderr.SeverityWarning {
		severity = "warning"
	}
	return resultView{
		OK: e.Severity == loaderr.SeverityWarning,
		Error: &errorView{
			Kind:     e.Kind.String(),
			Severity: severity,
			Title:    e.Title,
			Messages: loaderr.Messages(r.Err),
		},
	}
}

func columns(th model.TableHolder) tableView {
	cols := th.TableColumns()
	v := tableView{Columns: make([]columnView, len(cols))}
	for i, c := range cols {
		v.Columns[i] = columnView{Name: c.Name, Title: c.Title, Type: c.Type.String(), RegionType: c.RegionType}
	}
	if t := th.Table(); t != nil {
		v.Rows = t.NumRows()
		v.Data = t.ColumnMajor()
	}
	return v
}

// errNoTiles is returned for items without a vector tile layer.
var errNoTiles = errors.New("item has no vector tile layer")

func tileSource(items []mapitem.MapItem) (mapitem.TileSource, error) {
	for _, mi := range items {
		parts, ok := mi.(mapitem.ImageryParts)
		if !ok {
			continue
		}
		if p, ok := parts.Provider.(mapitem.VectorTileProvider); ok && p.Source != nil {
			return p.Source, nil
		}
	}
	return nil, errNoTiles
}

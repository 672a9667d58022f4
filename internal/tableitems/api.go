package tableitems

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/datapath"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/table"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeAPITable is the type tag of APITableItem.
const TypeAPITable = "api-table"

// Kinds of API in the apis trait.
const (
	// KindPerRow APIs return one row per element.
	KindPerRow = "PER_ROW"
	// KindPerID APIs return values joined onto PER_ROW rows by idKey.
	KindPerID = "PER_ID"
	// KindColumnMajor APIs return rows merged by id into one row each.
	KindColumnMajor = "COLUMN_MAJOR"
)

// APITableItem builds a table from one or more JSON APIs. Rows come from
// PER_ROW APIs, extended with the PER_ID row of the same id. Any
// COLUMN_MAJOR data replaces both.
type APITableItem struct {
	Mixin
}

// NewAPITable returns an idle api-table item.
func NewAPITable(env *model.Env, id string) *APITableItem {
	it := &APITableItem{}
	it.init(env, schemaFor(TypeAPITable, traits.AutoRefresh(), []traits.Trait{
		{Name: "apis", Kind: traits.KindObjectArray,
			Doc: "APIs, each {url, kind, responseDataPath, requestData, postRequestDataAsFormData}."},
		{Name: "idKey", Kind: traits.KindString, Doc: "Row key joining PER_ID and COLUMN_MAJOR data."},
		{Name: "apiColumns", Kind: traits.KindObjectArray, Doc: "Columns read from a path within each row, each {name, responseDataPath}."},
		{Name: "queryParameters", Kind: traits.KindObject, Doc: "Query parameters sent to every API."},
		{Name: "updateQueryParameters", Kind: traits.KindObject, Doc: "Query parameters added when refreshing."},
		{Name: "shouldAppendNewData", Kind: traits.KindBool, Default: false, Doc: "Append refreshed rows instead of replacing them."},
	}), id, it.load, nil)
	return it
}

type apiSpec struct {
	url         string
	kind        string
	dataPath    string
	requestData map[string]any
	asForm      bool
}

func (it *APITableItem) apiSpecs() ([]apiSpec, error) {
	raw := it.ObjectArray("apis")
	if len(raw) == 0 {
		return nil, it.MissingTrait("apis")
	}
	specs := make([]apiSpec, len(raw))
	for i, a := range raw {
		s := apiSpec{kind: KindPerRow}
		s.url, _ = a["url"].(string)
		if s.url == "" {
			return nil, it.MissingTrait(fmt.Sprintf("apis[%d].url", i))
		}
		if k, _ := a["kind"].(string); k != "" {
			s.kind = k
		}
		switch s.kind {
		case KindPerRow, KindPerID, KindColumnMajor:
		default:
			return nil, loaderr.New(loaderr.KindConfig, it.Type(), "Invalid configuration",
				fmt.Sprintf("apis[%d].kind %q must be one of %s, %s or %s", i, s.kind, KindPerRow, KindPerID, KindColumnMajor))
		}
		s.dataPath, _ = a["responseDataPath"].(string)
		s.requestData, _ = a["requestData"].(map[string]any)
		s.asForm, _ = a["postRequestDataAsFormData"].(bool)
		specs[i] = s
	}
	return specs, nil
}

// RefreshInterval returns refreshInterval when refreshing is enabled.
func (it *APITableItem) RefreshInterval() (time.Duration, bool) {
	secs, ok := it.Number("refreshInterval")
	if !ok || secs <= 0 || !it.Bool("refreshEnabled") {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// Refresh reloads the APIs with updateQueryParameters applied.
func (it *APITableItem) Refresh(ctx context.Context) error {
	it.InvalidateMapItems()
	return it.LoadMapItems(ctx).Err
}

func (it *APITableItem) load(ctx context.Context) (*table.Table, error) {
	specs, err := it.apiSpecs()
	if err != nil {
		return nil, err
	}
	prev := it.Table()
	update := prev != nil

	responses := make([]any, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, api := range specs {
		g.Go(func() error {
			req, err := it.request(api, update)
			if err != nil {
				return err
			}
			doc, err := fetch.JSON(gctx, it.Env().Fetcher, req)
			if err != nil {
				return it.NetworkError(err, api.url)
			}
			path, err := datapath.Compile(api.dataPath)
			if err != nil {
				return it.ParseError(err, api.url, "responseDataPath")
			}
			responses[i] = path.Eval(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := mergeAPIRows(specs, responses, it.String("idKey"))
	if dropped := shadowedAPIs(specs, responses); len(dropped) > 0 {
		it.Logger().Debugw("COLUMN_MAJOR data present; PER_ROW and PER_ID apis ignored", "item", it.ID(), "apis", dropped)
	}
	t, err := it.rowsToTable(rows)
	if err != nil {
		return nil, err
	}
	if update && it.Bool("shouldAppendNewData") {
		merged, err := table.FromColumnMajor(prev.ColumnMajor())
		if err != nil {
			return nil, err
		}
		merged.Append(t)
		return merged, nil
	}
	return t, nil
}

func (it *APITableItem) request(api apiSpec, update bool) (fetch.Request, error) {
	params := make(map[string]string)
	for k, v := range it.Object("queryParameters") {
		params[k] = table.Stringify(v)
	}
	if update {
		for k, v := range it.Object("updateQueryParameters") {
			params[k] = table.Stringify(v)
		}
	}
	u, err := fetch.WithQuery(api.url, params)
	if err != nil {
		return fetch.Request{}, it.ParseError(err, api.url, "URL")
	}
	u = it.ProxyURL(u)
	switch {
	case api.requestData == nil:
		return fetch.Get(u, nil), nil
	case api.asForm:
		return fetch.PostForm(u, api.requestData, nil), nil
	}
	req, err := fetch.PostJSON(u, api.requestData, nil)
	if err != nil {
		return fetch.Request{}, it.ParseError(err, api.url, "request data")
	}
	return req, nil
}

// rowsOf returns the objects of an API response. A single object is one
// row; other values have none.
func rowsOf(v any) []map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return []map[string]any{x}
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, el := range x {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// shadowedAPIs returns the urls of PER_ROW and PER_ID apis whose rows
// mergeAPIRows discards because a COLUMN_MAJOR api returned data.
func shadowedAPIs(specs []apiSpec, responses []any) []string {
	columnMajor := false
	for i, api := range specs {
		if api.kind == KindColumnMajor && len(rowsOf(responses[i])) > 0 {
			columnMajor = true
		}
	}
	if !columnMajor {
		return nil
	}
	var out []string
	for _, api := range specs {
		if api.kind != KindColumnMajor {
			out = append(out, api.url)
		}
	}
	return out
}

// mergeAPIRows combines API responses in declaration order. COLUMN_MAJOR
// rows are merged by id and, when present, are the only rows returned.
func mergeAPIRows(specs []apiSpec, responses []any, idKey string) []map[string]any {
	var perRow []map[string]any
	perID := make(map[string]map[string]any)
	byID := make(map[string]map[string]any)
	var order []string
	for i, api := range specs {
		for _, row := range rowsOf(responses[i]) {
			id := table.Stringify(row[idKey])
			switch api.kind {
			case KindPerID:
				perID[id] = row
			case KindColumnMajor:
				merged, ok := byID[id]
				if !ok {
					merged = make(map[string]any, len(row))
					byID[id] = merged
					order = append(order, id)
				}
				maps.Copy(merged, row)
			default:
				perRow = append(perRow, row)
			}
		}
	}
	if len(byID) > 0 {
		out := make([]map[string]any, len(order))
		for i, id := range order {
			out[i] = byID[id]
		}
		return out
	}
	out := make([]map[string]any, len(perRow))
	for i, row := range perRow {
		merged := maps.Clone(perID[table.Stringify(row[idKey])])
		if merged == nil {
			merged = make(map[string]any, len(row))
		}
		maps.Copy(merged, row)
		out[i] = merged
	}
	return out
}

// rowsToTable lays rows out in the columns trait's order. apiColumns paths
// are evaluated against each row; a path that finds nothing gives "".
// Without a columns trait the sorted union of row keys is used.
func (it *APITableItem) rowsToTable(rows []map[string]any) (*table.Table, error) {
	var names []string
	for _, c := range it.ObjectArray("columns") {
		if n, _ := c["name"].(string); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		seen := make(map[string]bool)
		for _, row := range rows {
			for k := range row {
				if !seen[k] {
					seen[k] = true
					names = append(names, k)
				}
			}
		}
		slices.Sort(names)
	}

	paths := make(map[string]datapath.Path)
	for _, c := range it.ObjectArray("apiColumns") {
		name, _ := c["name"].(string)
		raw, _ := c["responseDataPath"].(string)
		if name == "" || raw == "" {
			continue
		}
		p, err := datapath.Compile(raw)
		if err != nil {
			return nil, it.ParseError(err, "", "apiColumns path")
		}
		paths[name] = p
	}

	resolved := make([]map[string]any, len(rows))
	for i, row := range rows {
		r := make(map[string]any, len(names))
		for _, n := range names {
			if p, ok := paths[n]; ok {
				r[n] = p.Eval(row)
				continue
			}
			r[n] = row[n]
		}
		resolved[i] = r
	}
	return table.FromRecords(names, resolved), nil
}

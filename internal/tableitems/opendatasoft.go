package tableitems

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/table"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeOpenDataSoft is the type tag of OpenDataSoftItem.
const TypeOpenDataSoft = "opendatasoft-item"

// StratumOpenDataSoft is the load stratum holding dataset metadata.
const StratumOpenDataSoft = "openDataSoftDataset"

// Record paging of the records API.
const (
	odsPageSize   = 100
	odsMaxRecords = 1000
	// odsRecordID is the column holding each record's id.
	odsRecordID = "record_id"
)

// OpenDataSoftItem loads the records of an OpenDataSoft dataset as a table.
// Metadata inspects the dataset's fields to choose the time, position,
// region and colour columns.
type OpenDataSoftItem struct {
	Mixin
	dataset *strata.Loadable
}

// NewOpenDataSoft returns an idle opendatasoft-item.
func NewOpenDataSoft(env *model.Env, id string) *OpenDataSoftItem {
	it := &OpenDataSoftItem{}
	it.init(env, schemaFor(TypeOpenDataSoft, []traits.Trait{
		{Name: "datasetId", Kind: traits.KindString, Doc: "Dataset identifier."},
		{Name: "timeFieldName", Kind: traits.KindString, Doc: "Field holding record times."},
		{Name: "geoPoint2dFieldName", Kind: traits.KindString, Doc: "Field holding record positions."},
		{Name: "colorFieldName", Kind: traits.KindString, Doc: "Field visualised by default."},
		{Name: "regionFieldName", Kind: traits.KindString, Doc: "Field holding region codes."},
		{Name: "aggregateTime", Kind: traits.KindString, Doc: "Range used to average values over time, e.g. 1 day."},
		{Name: "selectFields", Kind: traits.KindString, Doc: "select clause of the records query."},
		{Name: "groupByFields", Kind: traits.KindString, Doc: "group_by clause of the records query."},
		{Name: "recordsCount", Kind: traits.KindNumber, Doc: "Number of records in the dataset."},
		{Name: "selectAllFields", Kind: traits.KindBool, Default: false, Doc: "Whether every field is fetched."},
		{Name: "maxPointSamples", Kind: traits.KindNumber, Doc: "Most records at any one position."},
	}), id, it.load, it.loadMetadata)
	it.dataset = it.MustAttachLoadStratum(StratumOpenDataSoft, it.inspect)
	return it
}

// DatasetStratum returns the stratum filled by inspecting the dataset.
func (it *OpenDataSoftItem) DatasetStratum() *strata.Loadable { return it.dataset }

// URL returns the url trait, the OpenDataSoft portal.
func (it *OpenDataSoftItem) URL() string { return it.String("url") }

func (it *OpenDataSoftItem) datasetURL() string {
	return strings.TrimRight(it.URL(), "/") + "/api/v2/catalog/datasets/" + url.PathEscape(it.String("datasetId"))
}

func (it *OpenDataSoftItem) loadMetadata(ctx context.Context) error {
	if it.URL() == "" {
		return it.MissingTrait("url")
	}
	if it.String("datasetId") == "" {
		return it.MissingTrait("datasetId")
	}
	if err := it.Env().Regions.Load(ctx); err != nil {
		return loaderr.Network(it.Type(), err, "Region mapping unavailable",
			"region mapping definitions could not be loaded")
	}
	return it.dataset.Load(ctx)
}

func (it *OpenDataSoftItem) inspect(ctx context.Context) (strata.Stratum, error) {
	id := it.String("datasetId")
	var resp struct {
		Dataset odsDataset `json:"dataset"`
	}
	u := it.datasetURL()
	if err := fetch.DecodeJSON(ctx, it.Env().Fetcher, fetch.Get(it.ProxyURL(u), nil), &resp); err != nil {
		return nil, it.NetworkError(err, u)
	}
	d := resp.Dataset
	if d.DatasetID == "" {
		return nil, loaderr.New(loaderr.KindParse, it.Type(), "Invalid dataset",
			fmt.Sprintf("Could not find dataset `%s`", id))
	}

	p := odsPlan{
		dataset:     d,
		page:        strings.TrimRight(it.URL(), "/") + "/explore/dataset/" + d.DatasetID + "/information/",
		timeField:   orElse(it.String("timeFieldName"), d.fieldOfType("datetime")),
		geoField:    orElse(it.String("geoPoint2dFieldName"), d.fieldOfType("geo_point_2d")),
		regionField: it.String("regionFieldName"),
		aggregate:   it.String("aggregateTime"),
		forceAll:    it.Bool("selectAllFields"),
	}
	if p.regionField == "" {
		p.regionField, p.regionType = d.regionField(it.Env().Regions)
	} else if f, ok := d.field(p.regionField); ok {
		p.regionType, _ = it.Env().Regions.MatchColumn(f.Name)
		if p.regionType == "" {
			p.regionType, _ = it.Env().Regions.MatchColumn(f.Label)
		}
	}
	p.colorField = orElse(it.String("colorFieldName"), p.defaultColorField(it.Env().Regions))
	if p.timeField != "" && p.geoField != "" {
		samples, err := it.maxPointSamples(ctx, p.timeField, p.geoField)
		if err != nil {
			return nil, err
		}
		p.maxSamples = samples
	}
	it.Logger().Debugw("dataset inspected", "dataset", d.DatasetID, "fields", len(d.Fields),
		"time", p.timeField, "geo", p.geoField, "color", p.colorField, "region", p.regionField)
	return p.stratum(), nil
}

// maxPointSamples returns the largest record count at one position.
func (it *OpenDataSoftItem) maxPointSamples(ctx context.Context, timeField, geoField string) (int, error) {
	u, err := fetch.WithQuery(it.datasetURL()+"/records", map[string]string{
		"select":   fmt.Sprintf("min(%[1]s) as min_time, max(%[1]s) as max_time, count(%[1]s) as num", timeField),
		"group_by": geoField,
		"limit":    strconv.Itoa(odsPageSize),
	})
	if err != nil {
		return 0, it.ParseError(err, it.URL(), "URL")
	}
	var resp odsRecords
	if err := fetch.DecodeJSON(ctx, it.Env().Fetcher, fetch.Get(it.ProxyURL(u), nil), &resp); err != nil {
		return 0, it.NetworkError(err, u)
	}
	most := 0
	for _, r := range resp.Records {
		if n, ok := r.Record.Fields["num"].(float64); ok && int(n) > most {
			most = int(n)
		}
	}
	return most, nil
}

type odsRecords struct {
	Records []struct {
		Record struct {
			ID     string         `json:"id"`
			Fields map[string]any `json:"fields"`
		} `json:"record"`
	} `json:"records"`
}

func (it *OpenDataSoftItem) load(ctx context.Context) (*table.Table, error) {
	if it.URL() == "" || it.String("datasetId") == "" {
		return nil, nil
	}
	params := map[string]string{"limit": strconv.Itoa(odsPageSize)}
	timeField := it.String("timeFieldName")
	if timeField != "" {
		params["order_by"] = timeField + " DESC"
	}
	if s := it.String("selectFields"); s != "" {
		params["select"] = s
	}
	if s := it.String("groupByFields"); s != "" {
		params["group_by"] = s
	}
	total := odsMaxRecords
	if n, ok := it.Number("recordsCount"); ok && int(n) < total {
		total = int(n)
	}
	pages := (total + odsPageSize - 1) / odsPageSize

	results := make([]odsRecords, pages)
	g, gctx := errgroup.WithContext(ctx)
	for i := range pages {
		g.Go(func() error {
			q := make(map[string]string, len(params)+1)
			for k, v := range params {
				q[k] = v
			}
			q["offset"] = strconv.Itoa(i * odsPageSize)
			u, err := fetch.WithQuery(it.datasetURL()+"/records", q)
			if err != nil {
				return it.ParseError(err, it.URL(), "URL")
			}
			if err := fetch.DecodeJSON(gctx, it.Env().Fetcher, fetch.Get(it.ProxyURL(u), nil), &results[i]); err != nil {
				return it.NetworkError(err, u)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var records []map[string]any
	for _, page := range results {
		for _, r := range page.Records {
			records = append(records, it.recordRow(r.Record.ID, r.Record.Fields))
		}
	}
	if len(records) == 0 {
		return nil, nil
	}
	return table.FromRecords(it.recordColumns(records), records), nil
}

// recordRow flattens a record, splitting the position field into lat and
// lon.
func (it *OpenDataSoftItem) recordRow(id string, fields map[string]any) map[string]any {
	geoField := it.String("geoPoint2dFieldName")
	row := map[string]any{odsRecordID: id}
	for k, v := range fields {
		if pos, ok := v.(map[string]any); ok && k == geoField {
			row["lat"], row["lon"] = pos["lat"], pos["lon"]
			continue
		}
		row[k] = v
	}
	return row
}

// recordColumns orders the record id, the position and time columns first
// and then the remaining fields in first-seen order.
func (it *OpenDataSoftItem) recordColumns(records []map[string]any) []string {
	names := []string{odsRecordID}
	seen := map[string]bool{odsRecordID: true}
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	if it.String("geoPoint2dFieldName") != "" {
		add("lat")
		add("lon")
	}
	add(it.String("timeFieldName"))
	for _, r := range records {
		for _, k := range sortedKeys(r) {
			add(k)
		}
	}
	return names
}

func orElse(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

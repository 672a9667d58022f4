package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/TerriaJS/terriajs-sub017/internal/catalog"
	"github.com/TerriaJS/terriajs-sub017/internal/config"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/logging"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

const pointsURL = "https://data.example.com/points.geojson"

func testItems(t *testing.T) []model.Item {
	t.Helper()
	reg, err := catalog.NewRegistry(catalog.Builtin(config.Config{}, nil)...)
	if err != nil {
		t.Fatal(err)
	}
	stub := fetch.NewStub().
		Text(pointsURL, `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}]}`).
		Status("https://data.example.com/gone.geojson", 404)
	env, err := reg.Env(config.Config{AppName: "Test"}, stub, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	cat := catalog.New(env, reg)
	if err := cat.Load([]catalog.Member{
		{Type: "geojson", ID: "points", Traits: map[string]any{"name": "Points", "url": pointsURL}},
		{Type: "geojson", ID: "gone", Traits: map[string]any{"url": "https://data.example.com/gone.geojson"}},
	}); err != nil {
		t.Fatal(err)
	}
	return cat.Items()
}

func TestLoadAll_KeepsOrderAndReportsFailures(t *testing.T) {
	t.Parallel()

	items := testItems(t)
	outcomes := loadAll(context.Background(), items, 1, true)
	if len(outcomes) != len(items) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(items))
	}

	var buf bytes.Buffer
	failed := 0
	for i, o := range outcomes {
		if o.item.ID() != items[i].ID() {
			t.Errorf("outcome %d is %s, want %s", i, o.item.ID(), items[i].ID())
		}
		if printOutcome(&buf, o) {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1\n%s", failed, buf.String())
	}
	out := buf.String()
	if !strings.Contains(out, "points (geojson)") || !strings.Contains(out, "gone (geojson)") {
		t.Errorf("missing item lines in:\n%s", out)
	}
}

func TestLoadAll_MetadataOnly(t *testing.T) {
	t.Parallel()

	for _, o := range loadAll(context.Background(), testItems(t), 4, false) {
		if o.mapItems != nil {
			t.Errorf("%s: map items loaded with mapItems=false", o.item.ID())
		}
	}
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"number", 0.5, "0.5"},
		{"multi-line", "a\nb", "a b"},
		{"slice", []string{"x", "y"}, "[x y]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatValue(tt.in); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := formatValue(strings.Repeat("é", 100))
	if n := len([]rune(long)); n != 60 {
		t.Errorf("long value is %d runes, want 60", n)
	}
	if !strings.HasSuffix(long, "…") {
		t.Errorf("long value %q is not elided", long)
	}
	if !strings.Contains(formatValue(nil), "unset") {
		t.Error("nil should render as unset")
	}
}

func TestPrintEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "load done",
			line: `{"ts":"2026-01-02T03:04:05Z","kind":"load_done","item":"csv-1","type":"csv","track":"metadata","durationMs":1250}`,
			want: []string{"[03:04:05]", "load_done", "item=csv-1", "type=csv", "track=metadata", "took=1.25s"},
		},
		{
			name: "failure with data",
			line: `{"ts":"2026-01-02T03:04:05Z","kind":"load_failed","item":"wms","error":"404","data":{"status":404,"attempt":2}}`,
			want: []string{"load_failed", `error="404"`, "attempt=2 status=404"},
		},
		{
			name: "not json",
			line: "garbage",
			want: []string{"??? garbage"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			printEvent(&buf, tt.line)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q does not contain %q", buf.String(), w)
				}
			}
		})
	}
}

package imageryitems

import (
	"context"
	"fmt"
	"sync"

	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

// TypeCOG is the type tag of COGItem.
const TypeCOG = "cog"

// cogHeaderRange is the byte range fetched to read the TIFF header and the
// first image directory.
const cogHeaderRange = "bytes=0-65535"

// COGItem shows a cloud-optimised GeoTIFF, colouring a transform of one or
// more bands. Metadata reads only the header of the file.
type COGItem struct {
	Mixin

	mu   sync.RWMutex
	info *tiffInfo
}

// NewCOG returns an idle cog item.
func NewCOG(env *model.Env, id string) *COGItem {
	it := &COGItem{}
	it.init(env, schemaFor(TypeCOG, []traits.Trait{
		{Name: "bands", Kind: traits.KindAny, Doc: "1-based band indices fed to the transform."},
		{Name: "transform", Kind: traits.KindEnum, Default: "identity", Enum: TransformNames(), Doc: "Function combining the bands."},
		{Name: "min", Kind: traits.KindNumber, Default: 0.0, Doc: "Transform value drawn with the first colour."},
		{Name: "max", Kind: traits.KindNumber, Default: 255.0, Doc: "Transform value drawn with the last colour."},
		{Name: "colors", Kind: traits.KindStringArray, Doc: "Colour ramp from min to max."},
		{Name: "noData", Kind: traits.KindNumber, Doc: "Value drawn transparent."},
	}), id, it.provider, it.loadMetadata)
	return it
}

func (it *COGItem) loadMetadata(ctx context.Context) error {
	if it.URL() == "" {
		return it.MissingTrait("url")
	}
	req := fetch.Get(it.ProxyURL(it.URL()), map[string]string{"Range": cogHeaderRange})
	head, err := fetch.Blob(ctx, it.Env().Fetcher, req)
	if err != nil {
		return it.NetworkError(err, it.URL())
	}
	info, err := parseTIFF(head)
	if err != nil {
		return it.ParseError(err, it.URL(), "GeoTIFF")
	}
	it.mu.Lock()
	it.info = &info
	it.mu.Unlock()

	if w, s, e, n, ok := info.Rectangle(); ok {
		r := mapitem.Rectangle{West: w, South: s, East: e, North: n}
		if err := it.SetTrait(strata.Underride, "rectangle", r.Trait()); err != nil {
			return err
		}
	}
	if info.NoData != nil {
		if err := it.SetTrait(strata.Underride, "noData", *info.NoData); err != nil {
			return err
		}
	}
	it.Logger().Debugw("geotiff header read", "width", info.Width, "height", info.Height, "bands", info.Bands)
	return nil
}

// BandCount returns the number of bands in the image, or 0 before metadata
// has loaded.
func (it *COGItem) BandCount() int {
	it.mu.RLock()
	defer it.mu.RUnlock()
	if it.info == nil {
		return 0
	}
	return it.info.Bands
}

// Bands returns the bands trait, defaulting to the first band.
func (it *COGItem) Bands() []int {
	raw, _ := it.Trait("bands").([]any)
	if len(raw) == 0 {
		return []int{1}
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

// Transform returns the selected transform after checking that it accepts
// the configured bands.
func (it *COGItem) Transform() (Transform, error) {
	name := it.String("transform")
	t, ok := LookupTransform(name)
	if !ok {
		return Transform{}, loaderr.New(loaderr.KindConfig, it.Type(), "Unknown transform",
			fmt.Sprintf("transform %q of %s is not one of %v", name, it.Name(), TransformNames()))
	}
	bands := it.Bands()
	if !t.Accepts(len(bands)) {
		return Transform{}, loaderr.New(loaderr.KindConfig, it.Type(), "Invalid bands",
			fmt.Sprintf("transform %s of %s takes %s, got %d", t.Name, it.Name(), t.arityText(), len(bands)))
	}
	return t, nil
}

// PixelValue applies the selected transform to the values of the configured
// bands of one pixel. values holds every band of the pixel in file order.
func (it *COGItem) PixelValue(values []float64) (float64, bool, error) {
	t, err := it.Transform()
	if err != nil {
		return 0, false, err
	}
	bands := it.Bands()
	in := make([]float64, len(bands))
	for i, b := range bands {
		if b < 1 || b > len(values) {
			return 0, false, fmt.Errorf("band %d out of range 1..%d", b, len(values))
		}
		in[i] = values[b-1]
	}
	if nd, ok := it.Number("noData"); ok {
		for _, v := range in {
			if v == nd {
				return 0, false, nil
			}
		}
	}
	v, err := t.Apply(in)
	return v, err == nil, err
}

func (it *COGItem) provider(context.Context) (mapitem.ImageryProvider, error) {
	t, err := it.Transform()
	if err != nil {
		return nil, err
	}
	bands := it.Bands()
	if n := it.BandCount(); n > 0 {
		for _, b := range bands {
			if b < 1 || b > n {
				return nil, loaderr.New(loaderr.KindConfig, it.Type(), "Invalid bands",
					fmt.Sprintf("band %d of %s is outside 1..%d", b, it.Name(), n))
			}
		}
	}
	p := mapitem.CogProvider{
		URL:       it.ProxyURL(it.URL()),
		Bands:     bands,
		Transform: t.Name,
		Colors:    it.StringArray("colors"),
		Credit:    it.String("attribution"),
	}
	p.Min, _ = it.Number("min")
	p.Max, _ = it.Number("max")
	if nd, ok := it.Number("noData"); ok {
		p.NoData = &nd
	}
	if r, ok := it.Rectangle(); ok {
		p.Rectangle = &r
	}
	return p, nil
}

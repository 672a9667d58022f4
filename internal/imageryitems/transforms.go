package imageryitems

import (
	"fmt"
	"slices"
)

// Transform combines the band values of one pixel into a single value.
type Transform struct {
	Name string
	// Arity is the number of bands the transform takes; 0 accepts any
	// non-zero number.
	Arity int
	Fn    func(bands []float64) float64
}

var transforms = map[string]Transform{
	"identity": {Name: "identity", Arity: 1, Fn: func(b []float64) float64 { return b[0] }},
	"ndvi":     {Name: "ndvi", Arity: 2, Fn: normalisedDifference},
	"ndwi":     {Name: "ndwi", Arity: 2, Fn: normalisedDifference},
	"ratio":    {Name: "ratio", Arity: 2, Fn: func(b []float64) float64 { return b[0] / b[1] }},
	"sum":      {Name: "sum", Fn: sum},
	"mean":     {Name: "mean", Fn: func(b []float64) float64 { return sum(b) / float64(len(b)) }},
}

// normalisedDifference is (a-b)/(a+b): NIR and red bands give NDVI, green
// and NIR bands give NDWI.
func normalisedDifference(b []float64) float64 { return (b[0] - b[1]) / (b[0] + b[1]) }

func sum(b []float64) float64 {
	var s float64
	for _, v := range b {
		s += v
	}
	return s
}

// LookupTransform returns the named transform.
func LookupTransform(name string) (Transform, bool) {
	t, ok := transforms[name]
	return t, ok
}

// TransformNames lists the registered transforms in sorted order.
func TransformNames() []string {
	names := make([]string, 0, len(transforms))
	for n := range transforms {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Accepts reports whether the transform takes n bands.
func (t Transform) Accepts(n int) bool {
	if t.Arity == 0 {
		return n > 0
	}
	return n == t.Arity
}

// Apply runs the transform over the band values of one pixel.
func (t Transform) Apply(bands []float64) (float64, error) {
	if !t.Accepts(len(bands)) {
		return 0, fmt.Errorf("transform %s takes %s, got %d", t.Name, t.arityText(), len(bands))
	}
	return t.Fn(bands), nil
}

func (t Transform) arityText() string {
	switch t.Arity {
	case 0:
		return "one or more bands"
	case 1:
		return "1 band"
	}
	return fmt.Sprintf("%d bands", t.Arity)
}

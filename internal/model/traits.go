package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/mapitem"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
)

// Trait resolves name through the strata, falling back to the schema
// default.
func (m *Model) Trait(name string) any {
	if v, ok := m.strata.Resolve(name); ok {
		return v
	}
	return m.schema.Default(name)
}

// IsSet reports whether any stratum defines name.
func (m *Model) IsSet(name string) bool {
	_, ok := m.strata.Resolve(name)
	return ok
}

// String returns a string trait, or "".
func (m *Model) String(name string) string {
	s, _ := m.Trait(name).(string)
	return s
}

// Number returns a numeric trait.
func (m *Model) Number(name string) (float64, bool) {
	switch v := m.Trait(name).(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns a boolean trait, or false.
func (m *Model) Bool(name string) bool {
	b, _ := m.Trait(name).(bool)
	return b
}

// StringArray returns a string-array trait.
func (m *Model) StringArray(name string) []string {
	switch v := m.Trait(name).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Object returns an object trait merged field by field across strata.
func (m *Model) Object(name string) map[string]any {
	if obj := m.strata.ResolveObject(name); obj != nil {
		return obj
	}
	obj, _ := m.schema.Default(name).(map[string]any)
	return obj
}

// ObjectArray returns an object-array trait from the highest stratum that
// defines it.
func (m *Model) ObjectArray(name string) []map[string]any {
	var out []map[string]any
	switch v := m.Trait(name).(type) {
	case []any:
		for _, el := range v {
			if obj, ok := el.(map[string]any); ok {
				out = append(out, obj)
			}
		}
	case []map[string]any:
		out = v
	}
	return out
}

// SetTrait coerces value to the declared kind of name and writes it to
// stratum only. A nil value clears the trait in that stratum.
func (m *Model) SetTrait(stratum, name string, value any) error {
	v, err := m.schema.Coerce(name, value)
	if err != nil {
		return err
	}
	return m.strata.SetTrait(stratum, name, v)
}

// UpdateFromJSON writes every known key of data to stratum. Unknown keys are
// ignored and logged at debug level. Values that cannot be coerced are
// skipped and reported together as one configuration error.
func (m *Model) UpdateFromJSON(stratum string, data map[string]any) error {
	if !m.strata.Order().Has(stratum) {
		return fmt.Errorf("model: %w: %q", strata.ErrUnknown, stratum)
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if _, known := m.schema.Lookup(k); !known {
			m.logger.Debugw("ignoring unknown trait", "trait", k)
			continue
		}
		if err := m.SetTrait(stratum, k, data[k]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	e := loaderr.New(loaderr.KindConfig, m.typ, "Invalid configuration",
		fmt.Sprintf("%d trait values of %s could not be applied", len(errs), m.Name()))
	e.Causes = errs
	return e
}

// AttachLoadStratum installs a loadable stratum computed by fn under name,
// which must be a registered load stratum.
func (m *Model) AttachLoadStratum(name string, fn strata.LoadFunc) (*strata.Loadable, error) {
	if !m.strata.Order().IsLoadStratum(name) {
		return nil, fmt.Errorf("model: %w: %q is not a load stratum", strata.ErrUnknown, name)
	}
	l := strata.NewLoadable(fn)
	if err := m.strata.Attach(name, l); err != nil {
		return nil, err
	}
	return l, nil
}

// MustAttachLoadStratum is AttachLoadStratum for item constructors whose
// stratum names are registered by the same package that calls it.
func (m *Model) MustAttachLoadStratum(name string, fn strata.LoadFunc) *strata.Loadable {
	l, err := m.AttachLoadStratum(name, fn)
	if err != nil {
		panic(err)
	}
	return l
}

// Name returns the name trait, or the id when unnamed.
func (m *Model) Name() string {
	if n := m.String("name"); n != "" {
		return n
	}
	return m.id
}

// Description returns the description trait.
func (m *Model) Description() string { return m.String("description") }

// Show returns the show trait.
func (m *Model) Show() bool { return m.Bool("show") }

// Opacity returns the opacity trait, 0.8 when undeclared.
func (m *Model) Opacity() float64 {
	if f, ok := m.Number("opacity"); ok {
		return f
	}
	return 0.8
}

// Rectangle returns the rectangle trait.
func (m *Model) Rectangle() (mapitem.Rectangle, bool) {
	return mapitem.RectangleFromTrait(m.Object("rectangle"))
}

// ImageryParts wraps provider with the item's display traits.
func (m *Model) ImageryParts(provider mapitem.ImageryProvider) mapitem.ImageryParts {
	parts := mapitem.ImageryParts{Provider: provider, Show: m.Show(), Alpha: m.Opacity()}
	if r, ok := m.Rectangle(); ok && m.Bool("clipToRectangle") {
		parts.ClippingRectangle = &r
	}
	return parts
}

// ProxyURL routes u through the proxy using the item's cacheDuration and
// forceProxy traits.
func (m *Model) ProxyURL(u string) string {
	return m.env.ProxyURL(u, m.String("cacheDuration"), m.Bool("forceProxy"))
}

// MissingTrait returns the configuration error for a required trait.
func (m *Model) MissingTrait(trait string) error {
	return loaderr.MissingTrait(m.typ, m.Name(), trait)
}

// NetworkError wraps a fetch failure of u.
func (m *Model) NetworkError(err error, u string) error {
	var le *loaderr.Error
	if errors.As(err, &le) {
		return le
	}
	return loaderr.Network(m.typ, err, "Network request error",
		fmt.Sprintf("could not load %s for %s", u, m.Name()))
}

// ParseError wraps a payload of u that could not be interpreted.
func (m *Model) ParseError(err error, u, what string) error {
	return loaderr.Parse(m.typ, "Invalid "+what,
		fmt.Sprintf("%s from %s is not valid %s", m.Name(), describeSource(u), what), err)
}

func describeSource(u string) string {
	if u == "" {
		return "inline data"
	}
	return u
}

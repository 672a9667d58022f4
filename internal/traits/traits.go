// Package traits declares the configuration schema of catalog items. A trait
// is a named, typed configuration field with a default and documentation; a
// Schema is the set of traits one item type accepts. Schemas are composed
// from reusable trait sets rather than inherited.
package traits

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the value type a trait accepts.
type Kind int

const (
	KindString      Kind = iota // JSON string
	KindNumber                  // JSON number, stored as float64
	KindBool                    // JSON boolean
	KindObject                  // JSON object, stored as map[string]any
	KindStringArray             // JSON array of strings, stored as []string
	KindObjectArray             // JSON array of objects, stored as []any of map[string]any
	KindAny                     // Any JSON value, stored as decoded
	KindEnum                    // JSON string restricted to Trait.Enum
)

// String returns the JSON-facing name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindStringArray:
		return "string[]"
	case KindObjectArray:
		return "object[]"
	case KindEnum:
		return "enum"
	default:
		return "any"
	}
}

// ErrUnknownTrait is returned when a schema has no trait with the given name.
var ErrUnknownTrait = errors.New("traits: unknown trait")

// CoercionError reports a value that could not be converted to the trait's
// kind.
type CoercionError struct {
	Trait string
	Want  Kind
	Got   any
}

// Error describes the mismatch.
func (e *CoercionError) Error() string {
	return fmt.Sprintf("traits: %s: cannot use %T (%v) as %s", e.Trait, e.Got, e.Got, e.Want)
}

// Trait is one declared configuration field.
type Trait struct {
	Name    string
	Kind    Kind
	Default any
	Doc     string
	Enum    []string
}

// Schema is the closed set of traits accepted by one item type.
type Schema struct {
	typeName string
	byName   map[string]Trait
}

// NewSchema composes trait sets into a schema. When two sets declare the
// same trait, the later declaration wins, which lets an item type override a
// shared set's default.
func NewSchema(typeName string, sets ...[]Trait) *Schema {
	s := &Schema{typeName: typeName, byName: make(map[string]Trait)}
	for _, set := range sets {
		for _, t := range set {
			s.byName[t.Name] = t
		}
	}
	return s
}

// TypeName returns the item type tag the schema belongs to.
func (s *Schema) TypeName() string { return s.typeName }

// Lookup returns the declaration of name.
func (s *Schema) Lookup(name string) (Trait, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Names returns all trait names in lexical order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the static default of name, or nil when the trait is
// unknown or has none.
func (s *Schema) Default(name string) any {
	return s.byName[name].Default
}

// Coerce converts a decoded JSON value to the representation stored for
// name. A nil value is passed through so callers can clear a trait.
func (s *Schema) Coerce(name string, v any) (any, error) {
	t, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownTrait, s.typeName, name)
	}
	if v == nil {
		return nil, nil
	}
	return t.coerce(v)
}

func (t Trait) coerce(v any) (any, error) {
	fail := &CoercionError{Trait: t.Name, Want: t.Kind, Got: v}
	switch t.Kind {
	case KindString:
		if s, ok := toString(v); ok {
			return s, nil
		}
	case KindNumber:
		if f, ok := toNumber(v); ok {
			return f, nil
		}
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed, nil
			}
		}
	case KindEnum:
		if s, ok := v.(string); ok {
			for _, allowed := range t.Enum {
				if s == allowed {
					return s, nil
				}
			}
		}
	case KindObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	case KindStringArray:
		return toStringArray(v, fail)
	case KindObjectArray:
		arr, ok := v.([]any)
		if !ok {
			if maps, isMaps := v.([]map[string]any); isMaps {
				arr = make([]any, len(maps))
				for i, m := range maps {
					arr[i] = m
				}
				return arr, nil
			}
			return nil, fail
		}
		for _, el := range arr {
			if _, isMap := el.(map[string]any); !isMap {
				return nil, fail
			}
		}
		return arr, nil
	case KindAny:
		return v, nil
	}
	return nil, fail
}

func toString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func toStringArray(v any, fail error) (any, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case string:
		return []string{x}, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, el := range x {
			s, ok := toString(el)
			if !ok {
				return nil, fail
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fail
}

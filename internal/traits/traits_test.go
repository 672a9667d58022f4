package traits

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return NewSchema("test",
		CatalogMember(),
		URL(),
		Mappable(),
		[]Trait{
			{Name: "kind", Kind: KindEnum, Enum: []string{"PER_ROW", "PER_ID"}},
			{Name: "urls", Kind: KindStringArray},
			{Name: "apis", Kind: KindObjectArray},
			{Name: "opacity", Kind: KindNumber, Default: 1.0},
		},
	)
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	s := testSchema()
	tests := []struct {
		name    string
		trait   string
		in      any
		want    any
		wantErr bool
	}{
		{"string", "url", "http://a", "http://a", false},
		{"number to string", "name", 12.0, "12", false},
		{"number", "opacity", 0.42, 0.42, false},
		{"numeric string", "opacity", " 0.5 ", 0.5, false},
		{"bad number", "opacity", "half", nil, true},
		{"bool", "show", false, false, false},
		{"bool string", "show", "true", true, false},
		{"bad bool", "show", 1.0, nil, true},
		{"enum", "kind", "PER_ID", "PER_ID", false},
		{"bad enum", "kind", "PER_COLUMN", nil, true},
		{"object", "rectangle", map[string]any{"west": 1.0}, map[string]any{"west": 1.0}, false},
		{"bad object", "rectangle", "x", nil, true},
		{"string array", "urls", []any{"a", "b"}, []string{"a", "b"}, false},
		{"single string array", "urls", "a", []string{"a"}, false},
		{"bad string array", "urls", []any{"a", map[string]any{}}, nil, true},
		{"object array", "apis", []any{map[string]any{"url": "x"}}, []any{map[string]any{"url": "x"}}, false},
		{"bad object array", "apis", []any{"x"}, nil, true},
		{"nil clears", "url", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.Coerce(tt.trait, tt.in)
			if tt.wantErr {
				var ce *CoercionError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tt.trait, ce.Trait)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceUnknownTrait(t *testing.T) {
	t.Parallel()

	_, err := testSchema().Coerce("nope", "x")
	assert.True(t, errors.Is(err, ErrUnknownTrait))
}

func TestLaterSetOverridesDefault(t *testing.T) {
	t.Parallel()

	s := testSchema()
	assert.Equal(t, 1.0, s.Default("opacity"))
	assert.Equal(t, true, s.Default("show"))
	assert.Nil(t, s.Default("missing"))
	assert.Equal(t, "test", s.TypeName())
	assert.Contains(t, s.Names(), "dataCustodian")
}

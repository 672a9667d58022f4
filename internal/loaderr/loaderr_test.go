package loaderr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"config", MissingTrait("csv", "My CSV", "url"), ErrConfig, true},
		{"config is not network", MissingTrait("csv", "My CSV", "url"), ErrNetwork, false},
		{"network", Network("geojson", errors.New("timeout"), "t", "m"), ErrNetwork, true},
		{"parse", Parse("kml", "t", "m", nil), ErrParse, true},
		{"multi", Combine("carto", "t", errors.New("a"), nil), ErrMultiSource, true},
		{"wrapped", fmt.Errorf("outer: %w", Parse("x", "t", "m", nil)), ErrParse, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestMissingTraitNamesTraitAndItem(t *testing.T) {
	t.Parallel()

	err := MissingTrait("opendatasoft-item", "Parking bays", "datasetId")
	assert.Contains(t, err.Error(), "`datasetId`")
	assert.Contains(t, err.Error(), "Parking bays")
	assert.Equal(t, KindConfig, err.Kind)
}

func TestCombine(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Combine("s", "t", nil, nil))

	cause := errors.New("boom")
	err := Combine("s", "t", nil, cause, errors.New("bang"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Len(t, le.Causes, 2)
	assert.Contains(t, err.Error(), "(and 1 more)")
}

func TestWarningSeverity(t *testing.T) {
	t.Parallel()

	err := Parse("assimp", "Unsupported textures", "tif", nil).AsWarning()
	assert.True(t, IsWarning(err))
	assert.False(t, IsWarning(Parse("assimp", "t", "m", nil)))
	assert.False(t, IsWarning(errors.New("plain")))
}

func TestFromKeepsExistingError(t *testing.T) {
	t.Parallel()

	orig := Network("s", nil, "t", "m")
	assert.Same(t, orig, From(fmt.Errorf("wrap: %w", orig), "other", "other"))

	plain := From(errors.New("disk full"), "store", "Could not save")
	assert.Equal(t, KindGeneric, plain.Kind)
	assert.Nil(t, From(nil, "s", "t"))
}

func TestMessagesFlattensTree(t *testing.T) {
	t.Parallel()

	inner := Parse("geojson", "Invalid GeoJSON", "no features", nil)
	outer := Combine("carto-v3", "Failed to load GeoJSON", inner, errors.New("eof"))

	got := Messages(outer)
	require.Len(t, got, 3)
	assert.True(t, strings.HasPrefix(got[0], "Failed to load GeoJSON"))
	assert.Equal(t, "Invalid GeoJSON: no features", got[1])
	assert.Equal(t, "eof", got[2])
}

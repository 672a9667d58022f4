package strata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(t *testing.T, loads ...string) *Order {
	t.Helper()
	b := NewBuilder()
	for _, n := range loads {
		require.NoError(t, b.AddLoadStratum(n))
	}
	return b.Build()
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	t.Run("load strata sit between underride and definition", func(t *testing.T) {
		t.Parallel()
		o := testOrder(t, "bingMetadata", "tableAutomaticStyles")
		assert.Equal(t, []string{Defaults, Underride, "bingMetadata", "tableAutomaticStyles", Definition, Override, User}, o.Names())
		assert.Equal(t, User, o.Descending()[0])
		assert.True(t, o.IsLoadStratum("bingMetadata"))
		assert.False(t, o.IsLoadStratum(User))
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		t.Parallel()
		b := NewBuilder()
		require.NoError(t, b.AddLoadStratum("georss"))
		assert.ErrorIs(t, b.AddLoadStratum("georss"), ErrDuplicate)
		assert.ErrorIs(t, b.AddLoadStratum(User), ErrDuplicate)
	})

	t.Run("built order is frozen", func(t *testing.T) {
		t.Parallel()
		b := NewBuilder()
		b.Build()
		assert.ErrorIs(t, b.AddLoadStratum("late"), ErrFrozen)
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()
	o := testOrder(t, "remote")
	s := NewSet(o)

	require.NoError(t, s.SetTrait(Definition, "name", "from definition"))
	require.NoError(t, s.SetTrait(Defaults, "opacity", 0.5))
	require.NoError(t, s.Attach("remote", Values{"name": "from remote", "url": "https://example.com"}))

	v, ok := s.Resolve("name")
	require.True(t, ok)
	assert.Equal(t, "from definition", v)

	v, ok = s.Resolve("url")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", v)

	which, _ := s.Which("opacity")
	assert.Equal(t, Defaults, which)

	require.NoError(t, s.SetTrait(User, "name", "user edit"))
	v, _ = s.Resolve("name")
	assert.Equal(t, "user edit", v)

	// Writes touch only the named stratum.
	assert.Equal(t, map[string]any{"name": "from definition"}, s.Snapshot(Definition))

	require.NoError(t, s.SetTrait(User, "name", nil))
	v, _ = s.Resolve("name")
	assert.Equal(t, "from definition", v)

	_, ok = s.Resolve("missing")
	assert.False(t, ok)
}

func TestSetTraitErrors(t *testing.T) {
	t.Parallel()
	s := NewSet(testOrder(t, "remote"))
	require.NoError(t, s.Attach("remote", Values{}))

	assert.ErrorIs(t, s.SetTrait("nope", "name", "x"), ErrUnknown)
	assert.ErrorIs(t, s.SetTrait("remote", "name", "x"), ErrReadOnly)
	assert.ErrorIs(t, s.Attach("nope", Values{}), ErrUnknown)
}

func TestResolveObject(t *testing.T) {
	t.Parallel()
	s := NewSet(testOrder(t))

	require.NoError(t, s.SetTrait(Underride, "style", map[string]any{
		"fill":   "#ff0000",
		"stroke": "#000000",
		"marker": map[string]any{"size": "small", "color": "red"},
	}))
	require.NoError(t, s.SetTrait(User, "style", map[string]any{
		"fill":   "#00ff00",
		"marker": map[string]any{"size": "large"},
	}))

	got := s.ResolveObject("style")
	assert.Equal(t, map[string]any{
		"fill":   "#00ff00",
		"stroke": "#000000",
		"marker": map[string]any{"size": "large", "color": "red"},
	}, got)

	// The source strata are untouched by the merge.
	under := s.Snapshot(Underride)["style"].(map[string]any)
	assert.Equal(t, "small", under["marker"].(map[string]any)["size"])

	assert.Nil(t, s.ResolveObject("absent"))
}

func TestLoadable(t *testing.T) {
	t.Parallel()

	t.Run("absent until loaded", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		l := NewLoadable(func(ctx context.Context) (Stratum, error) {
			<-release
			return Values{"name": "loaded"}, nil
		})
		s := NewSet(testOrder(t, "remote"))
		require.NoError(t, s.Attach("remote", l))

		done := make(chan error, 1)
		go func() { done <- l.Load(context.Background()) }()

		require.Eventually(t, func() bool {
			st, _ := l.State()
			return st == Loading
		}, time.Second, time.Millisecond)
		_, ok := s.Resolve("name")
		assert.False(t, ok, "loading stratum must read as absent")

		close(release)
		require.NoError(t, <-done)
		v, ok := s.Resolve("name")
		require.True(t, ok)
		assert.Equal(t, "loaded", v)
	})

	t.Run("failure is recorded and retried", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		boom := errors.New("boom")
		l := NewLoadable(func(ctx context.Context) (Stratum, error) {
			if calls.Add(1) == 1 {
				return nil, boom
			}
			return Values{"a": 1.0}, nil
		})

		assert.ErrorIs(t, l.Load(context.Background()), boom)
		st, err := l.State()
		assert.Equal(t, Failed, st)
		assert.ErrorIs(t, err, boom)
		_, ok := l.Value("a")
		assert.False(t, ok)

		require.NoError(t, l.Load(context.Background()))
		require.NoError(t, l.Load(context.Background()))
		assert.Equal(t, int32(2), calls.Load(), "a loaded stratum is not fetched again")
	})

	t.Run("concurrent loads share one run", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		release := make(chan struct{})
		l := NewLoadable(func(ctx context.Context) (Stratum, error) {
			calls.Add(1)
			<-release
			return Values{}, nil
		})

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, l.Load(context.Background()))
			}()
		}
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		close(release)
		wg.Wait()
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("failed reload keeps previous values", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		l := NewLoadable(func(ctx context.Context) (Stratum, error) {
			if calls.Add(1) == 2 {
				return nil, errors.New("offline")
			}
			return Values{"v": float64(calls.Load())}, nil
		})
		require.NoError(t, l.Load(context.Background()))
		assert.Error(t, l.Reload(context.Background()))
		v, ok := l.Value("v")
		require.True(t, ok)
		assert.Equal(t, 1.0, v)

		l.Reset()
		st, _ := l.State()
		assert.Equal(t, NotLoaded, st)
	})
}

func TestStatic(t *testing.T) {
	t.Parallel()
	src := map[string]any{"a": 1.0}
	s := NewStatic(src)
	src["a"] = 2.0
	v, _ := s.Value("a")
	assert.Equal(t, 1.0, v, "NewStatic copies its input")

	s.Replace(map[string]any{"b": true})
	_, ok := s.Value("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

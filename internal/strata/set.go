package strata

import (
	"fmt"
	"maps"
	"sync"
)

// Set holds the strata of one item, keyed by name and resolved through a
// shared Order.
type Set struct {
	order *Order

	mu     sync.RWMutex
	strata map[string]Stratum
}

// NewSet returns a set with an empty Static stratum for each common stratum.
func NewSet(order *Order) *Set {
	s := &Set{order: order, strata: make(map[string]Stratum)}
	for _, n := range []string{Defaults, Underride, Definition, Override, User} {
		s.strata[n] = NewStatic(nil)
	}
	return s
}

// Order returns the order the set resolves through.
func (s *Set) Order() *Order { return s.order }

// Attach installs st under name, replacing whatever was there.
func (s *Set) Attach(name string, st Stratum) error {
	if !s.order.Has(name) {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strata[name] = st
	return nil
}

// Get returns the stratum stored under name.
func (s *Set) Get(name string) (Stratum, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strata[name]
	return st, ok
}

// Static returns the stratum stored under name if it is writable.
func (s *Set) Static(name string) (*Static, bool) {
	st, ok := s.Get(name)
	if !ok {
		return nil, false
	}
	static, ok := st.(*Static)
	return static, ok
}

// Resolve returns the value of trait from the highest-priority stratum that
// defines it.
func (s *Set) Resolve(trait string) (any, bool) {
	v, _, ok := s.resolve(trait)
	return v, ok
}

// Which returns the name of the stratum that supplies trait.
func (s *Set) Which(trait string) (string, bool) {
	_, name, ok := s.resolve(trait)
	return name, ok
}

func (s *Set) resolve(trait string) (any, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order.names) - 1; i >= 0; i-- {
		name := s.order.names[i]
		st, ok := s.strata[name]
		if !ok {
			continue
		}
		if v, ok := st.Value(trait); ok {
			return v, name, true
		}
	}
	return nil, "", false
}

// ResolveObject merges an object-valued trait across all strata. Fields set
// in a higher-priority stratum win; nested objects are merged recursively.
// It returns nil when no stratum holds an object for trait.
func (s *Set) ResolveObject(trait string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out map[string]any
	for _, name := range s.order.names {
		st, ok := s.strata[name]
		if !ok {
			continue
		}
		v, ok := st.Value(trait)
		if !ok {
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = mergeObject(out, obj)
	}
	return out
}

func mergeObject(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		sub, isObj := v.(map[string]any)
		prev, prevObj := dst[k].(map[string]any)
		if isObj && prevObj {
			dst[k] = mergeObject(maps.Clone(prev), sub)
			continue
		}
		if isObj {
			dst[k] = mergeObject(nil, sub)
			continue
		}
		dst[k] = v
	}
	return dst
}

// SetTrait writes value to trait in the named stratum only. A nil value
// clears the trait in that stratum.
func (s *Set) SetTrait(stratum, trait string, value any) error {
	if !s.order.Has(stratum) {
		return fmt.Errorf("%w: %q", ErrUnknown, stratum)
	}
	static, ok := s.Static(stratum)
	if !ok {
		return fmt.Errorf("%w: %q", ErrReadOnly, stratum)
	}
	static.Set(trait, value)
	return nil
}

// Snapshot returns the content of a static stratum.
func (s *Set) Snapshot(stratum string) map[string]any {
	if static, ok := s.Static(stratum); ok {
		return static.Snapshot()
	}
	return nil
}

// Package strata implements the layered override model behind every catalog
// item. An item's effective trait value is the first value found when
// scanning its named strata from highest to lowest priority. The priority
// order is global: it is assembled once at startup with a Builder and then
// frozen, so every item resolves through the same chain.
package strata

import (
	"errors"
	"fmt"
	"slices"
)

// Names of the strata every item carries. Load strata registered with a
// Builder sit between Underride and Definition.
const (
	Defaults   = "defaults"
	Underride  = "underride"
	Definition = "definition"
	Override   = "override"
	User       = "user"
)

// Errors returned by Builder and Set.
var (
	// ErrDuplicate is returned when a stratum name is registered twice.
	ErrDuplicate = errors.New("strata: stratum already registered")
	// ErrUnknown is returned for a stratum name the order does not contain.
	ErrUnknown = errors.New("strata: unknown stratum")
	// ErrReadOnly is returned when writing a trait to a stratum that is not static.
	ErrReadOnly = errors.New("strata: stratum is not writable")
	// ErrFrozen is returned when registering on a builder that has been built.
	ErrFrozen = errors.New("strata: order already built")
)

// Builder collects load stratum names in registration order. It is not safe
// for concurrent use; registration is a startup step.
type Builder struct {
	loads  []string
	seen   map[string]bool
	frozen bool
}

// NewBuilder returns a builder pre-seeded with the common strata.
func NewBuilder() *Builder {
	seen := make(map[string]bool)
	for _, n := range []string{Defaults, Underride, Definition, Override, User} {
		seen[n] = true
	}
	return &Builder{seen: seen}
}

// AddLoadStratum registers a load stratum. Each call places the new stratum
// above every previously registered load stratum.
func (b *Builder) AddLoadStratum(name string) error {
	if b.frozen {
		return fmt.Errorf("%w: cannot add %q", ErrFrozen, name)
	}
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknown)
	}
	if b.seen[name] {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	b.seen[name] = true
	b.loads = append(b.loads, name)
	return nil
}

// Build freezes the builder and returns the resulting order.
func (b *Builder) Build() *Order {
	b.frozen = true
	names := make([]string, 0, len(b.loads)+5)
	names = append(names, Defaults, Underride)
	names = append(names, b.loads...)
	names = append(names, Definition, Override, User)

	rank := make(map[string]int, len(names))
	for i, n := range names {
		rank[n] = i
	}
	return &Order{names: names, rank: rank}
}

// Order is a frozen total order over stratum names, lowest priority first.
type Order struct {
	names []string
	rank  map[string]int
}

// Names returns the stratum names from lowest to highest priority.
func (o *Order) Names() []string {
	return slices.Clone(o.names)
}

// Descending returns the stratum names from highest to lowest priority.
func (o *Order) Descending() []string {
	out := slices.Clone(o.names)
	slices.Reverse(out)
	return out
}

// Rank returns the position of name, where higher means higher priority.
func (o *Order) Rank(name string) (int, bool) {
	r, ok := o.rank[name]
	return r, ok
}

// Has reports whether name is part of the order.
func (o *Order) Has(name string) bool {
	_, ok := o.rank[name]
	return ok
}

// IsLoadStratum reports whether name was registered with AddLoadStratum.
func (o *Order) IsLoadStratum(name string) bool {
	switch name {
	case Defaults, Underride, Definition, Override, User:
		return false
	}
	return o.Has(name)
}

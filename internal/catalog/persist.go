package catalog

import (
	"context"

	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
)

// UserStrataStore persists the user stratum of items by id. store.Store
// implements it.
type UserStrataStore interface {
	SaveUserStratum(ctx context.Context, itemID string, values map[string]any) error
	LoadUserStratum(ctx context.Context, itemID string) (map[string]any, error)
}

// SaveUserStrata writes the user stratum of every item. Items without user
// changes clear their saved record.
func (c *Catalog) SaveUserStrata(ctx context.Context, st UserStrataStore) error {
	var errs []error
	for _, it := range c.Items() {
		if err := st.SaveUserStratum(ctx, it.ID(), it.Strata().Snapshot(strata.User)); err != nil {
			errs = append(errs, err)
		}
	}
	return loaderr.Combine("catalog", "User changes could not be saved", errs...)
}

// RestoreUserStrata applies saved user strata to the items of the catalog
// and returns how many items had one.
func (c *Catalog) RestoreUserStrata(ctx context.Context, st UserStrataStore) (int, error) {
	var (
		errs []error
		n    int
	)
	for _, it := range c.Items() {
		values, err := st.LoadUserStratum(ctx, it.ID())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(values) == 0 {
			continue
		}
		if err := it.UpdateFromJSON(strata.User, values); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	c.logger.Debugw("user strata restored", "items", n)
	return n, loaderr.Combine("catalog", "User changes could not be restored", errs...)
}

package catalog

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/telemetry"
)

// Refresher reloads auto-refreshing items on their refresh interval.
type Refresher struct {
	cat *Catalog
	min time.Duration
}

// NewRefresher returns a refresher for the items of cat. Intervals shorter
// than minInterval are raised to it.
func NewRefresher(cat *Catalog, minInterval time.Duration) *Refresher {
	return &Refresher{cat: cat, min: minInterval}
}

// Interval returns the clamped refresh interval of it.
func (r *Refresher) Interval(it model.AutoRefresher) (time.Duration, bool) {
	d, ok := it.RefreshInterval()
	if !ok {
		return 0, false
	}
	return max(d, r.min), true
}

// Run refreshes the items present when it starts until ctx is done. Failed
// refreshes are logged and retried on the next tick.
func (r *Refresher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	started := 0
	for _, it := range r.cat.Items() {
		ar, ok := it.(model.AutoRefresher)
		if !ok {
			continue
		}
		d, ok := r.Interval(ar)
		if !ok {
			continue
		}
		started++
		g.Go(func() error {
			r.loop(gctx, it.ID(), ar, d)
			return nil
		})
	}
	r.cat.logger.Infow("auto-refresh started", "items", started)
	return g.Wait()
}

func (r *Refresher) loop(ctx context.Context, id string, ar model.AutoRefresher, d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ar.Refresh(ctx)
			if ctx.Err() != nil {
				return
			}
			r.cat.emit(telemetry.Event{Kind: telemetry.KindRefresh, ItemID: id}, err)
			if err != nil {
				r.cat.logger.Warnw("refresh failed", "item", id, "error", err)
				continue
			}
			r.cat.logger.Debugw("item refreshed", "item", id)
		}
	}
}

package model

import (
	"go.uber.org/zap"

	"github.com/TerriaJS/terriajs-sub017/internal/config"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/logging"
	"github.com/TerriaJS/terriajs-sub017/internal/region"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/telemetry"
)

// Env is the read-only context shared by every item of a catalog: runtime
// configuration, the network boundary, the logger, region providers, the
// telemetry stream and the frozen stratum order. Items never mutate it.
type Env struct {
	Config    config.Config
	Fetcher   fetch.Fetcher
	Logger    *zap.SugaredLogger
	Regions   *region.Registry
	Telemetry *telemetry.Emitter
	Order     *strata.Order
}

// NewEnv returns an Env with every nil collaborator replaced by a default:
// an HTTP fetcher built from cfg, a no-op logger, a region registry reading
// cfg.RegionMappingURL and an order with no load strata.
func NewEnv(cfg config.Config, f fetch.Fetcher, logger *zap.SugaredLogger, order *strata.Order) *Env {
	if logger == nil {
		logger = logging.Nop()
	}
	if f == nil {
		f = fetch.NewHTTPFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent)
	}
	if order == nil {
		order = strata.NewBuilder().Build()
	}
	return &Env{
		Config:  cfg,
		Fetcher: f,
		Logger:  logger,
		Regions: region.New(f, cfg.RegionMappingURL, logger),
		Order:   order,
	}
}

// ProxyURL routes rawURL through the configured proxy. An empty
// cacheDuration falls back to the configured default.
func (e *Env) ProxyURL(rawURL, cacheDuration string, force bool) string {
	if cacheDuration == "" {
		cacheDuration = e.Config.Proxy.DefaultCacheDuration
	}
	return fetch.ProxyURL(e.Config.Proxy, rawURL, cacheDuration, force)
}

// OrderWith builds a stratum order registering loadStrata in the given
// order. It is the startup step item registries and tests share.
func OrderWith(loadStrata ...string) (*strata.Order, error) {
	b := strata.NewBuilder()
	for _, name := range loadStrata {
		if err := b.AddLoadStratum(name); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

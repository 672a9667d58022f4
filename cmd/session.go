package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/TerriaJS/terriajs-sub017/internal/catalog"
	"github.com/TerriaJS/terriajs-sub017/internal/config"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/logging"
	"github.com/TerriaJS/terriajs-sub017/internal/store"
	"github.com/TerriaJS/terriajs-sub017/internal/telemetry"
)

// session is the wiring shared by the commands that build a catalog.
type session struct {
	cfg    config.Config
	logger *zap.SugaredLogger
	store  *store.Store
	tel    *telemetry.Emitter
	cat    *catalog.Catalog
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return config.Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// openStore opens the configured cache, or returns nil when none is set.
func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	if cfg.Cache.Path == "" {
		return nil, nil
	}
	return store.Open(ctx, cfg.Cache.Path)
}

// newSession builds the environment and an empty catalog from the runtime
// configuration.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Debug)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger}

	var f fetch.Fetcher = fetch.NewHTTPFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent)
	if s.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if s.store != nil {
		f = fetch.NewCachingFetcher(f, s.store, cfg.Cache.TTL, logger)
	}
	if cfg.Telemetry.Path != "" {
		if s.tel, err = telemetry.NewEmitter(cfg.Telemetry.Path); err != nil {
			s.Close()
			return nil, err
		}
	}

	reg, err := catalog.NewRegistry(catalog.Builtin(cfg, logger)...)
	if err != nil {
		s.Close()
		return nil, err
	}
	env, err := reg.Env(cfg, f, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	env.Telemetry = s.tel
	s.cat = catalog.New(env, reg)
	return s, nil
}

// open builds a session and loads the catalog file at path. Member errors
// are logged; the valid members stay usable.
func open(ctx context.Context, path string) (*session, error) {
	s, err := newSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cat.LoadFile(path); err != nil {
		if len(s.cat.Items()) == 0 {
			s.Close()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		s.logger.Warnw("catalog loaded with errors", "path", path, "error", err)
	}
	if s.store != nil {
		if n, err := s.cat.RestoreUserStrata(ctx, s.store); err != nil {
			s.logger.Warnw("user strata not restored", "error", err)
		} else if n > 0 {
			s.logger.Infow("user strata restored", "items", n)
		}
	}
	return s, nil
}

// Close releases the store and the telemetry file.
func (s *session) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warnw("store close failed", "error", err)
		}
	}
	if err := s.tel.Close(); err != nil {
		s.logger.Warnw("telemetry close failed", "error", err)
	}
	_ = s.logger.Sync()
}

// Package logging builds the structured logger injected into every loader.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a sugared zap logger. Debug mode selects the development
// encoder (console, caller, stack traces on warn); otherwise the production
// JSON encoder is used. level is any zap level name ("debug", "info", ...).
func New(level string, debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logging: parse level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests and library use
// without a configured logger.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

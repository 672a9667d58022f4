// Package catalog assembles items from catalog files. It owns the type
// registry that freezes the stratum order, turns JSON, TOML and YAML
// members into items, persists user strata, reloads files when they change
// and drives auto-refreshing items.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/TerriaJS/terriajs-sub017/internal/config"
	"github.com/TerriaJS/terriajs-sub017/internal/datasourceitems"
	"github.com/TerriaJS/terriajs-sub017/internal/fetch"
	"github.com/TerriaJS/terriajs-sub017/internal/geojsonitems"
	"github.com/TerriaJS/terriajs-sub017/internal/imageryitems"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/sceneitems"
	"github.com/TerriaJS/terriajs-sub017/internal/tableitems"
)

// ErrDuplicateType is returned when two registrations share a type tag.
var ErrDuplicateType = errors.New("catalog: duplicate item type")

// Registry maps type tags to item constructors. It is immutable once built.
type Registry struct {
	regs  map[string]model.Registration
	order []model.Registration
}

// NewRegistry returns a registry of regs, rejecting duplicate type tags.
func NewRegistry(regs ...model.Registration) (*Registry, error) {
	r := &Registry{regs: make(map[string]model.Registration, len(regs))}
	for _, reg := range regs {
		if _, dup := r.regs[reg.Type]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateType, reg.Type)
		}
		r.regs[reg.Type] = reg
		r.order = append(r.order, reg)
	}
	return r, nil
}

// Builtin returns the registrations of every item package. Assimp items get
// a command-line converter when cfg names one.
func Builtin(cfg config.Config, logger *zap.SugaredLogger) []model.Registration {
	var sceneOpts []sceneitems.Option
	if cfg.AssImp.Path != "" {
		sceneOpts = append(sceneOpts, sceneitems.WithConverter(&sceneitems.CLIConverter{Path: cfg.AssImp.Path, Logger: logger}))
	}
	var regs []model.Registration
	regs = append(regs, geojsonitems.Registrations()...)
	regs = append(regs, tableitems.Registrations()...)
	regs = append(regs, imageryitems.Registrations()...)
	regs = append(regs, sceneitems.Registrations(sceneOpts...)...)
	regs = append(regs, datasourceitems.Registrations()...)
	return regs
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.regs))
	for t := range r.regs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Env freezes the stratum order of every registered load stratum and
// returns the environment items are built in.
func (r *Registry) Env(cfg config.Config, f fetch.Fetcher, logger *zap.SugaredLogger) (*model.Env, error) {
	order, err := model.OrderWith(model.LoadStrata(r.order...)...)
	if err != nil {
		return nil, fmt.Errorf("catalog: stratum order: %w", err)
	}
	return model.NewEnv(cfg, f, logger, order), nil
}

// New builds an idle item of type typ. Unknown types are configuration
// errors naming the type.
func (r *Registry) New(env *model.Env, typ, id string) (model.Item, error) {
	reg, ok := r.regs[typ]
	if !ok {
		return nil, loaderr.New(loaderr.KindConfig, "catalog", "Unknown type",
			fmt.Sprintf("%q is not a known item type", typ))
	}
	return reg.New(env, id), nil
}

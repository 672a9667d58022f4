package catalog

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
	"github.com/TerriaJS/terriajs-sub017/internal/telemetry"
)

// Group is a named node of the catalog tree. Items holds item ids.
type Group struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Items  []string `json:"items,omitempty"`
	Groups []*Group `json:"groups,omitempty"`
}

// Catalog is the set of items built from catalog members. It is safe for
// concurrent use; Load swaps the whole set at once.
type Catalog struct {
	env    *model.Env
	reg    *Registry
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	items map[string]model.Item
	ids   []string
	root  *Group
}

// New returns an empty catalog building items of reg in env.
func New(env *model.Env, reg *Registry) *Catalog {
	return &Catalog{
		env:    env,
		reg:    reg,
		logger: env.Logger.With("component", "catalog"),
		items:  map[string]model.Item{},
		root:   &Group{ID: "root", Name: env.Config.AppName},
	}
}

// Env returns the environment items are built in.
func (c *Catalog) Env() *model.Env { return c.env }

// LoadFile replaces the catalog with the members of a catalog file.
func (c *Catalog) LoadFile(path string) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", path, err)
	}
	ms, err := Parse(data, f)
	if err != nil {
		return loaderr.Parse("catalog", "Invalid catalog file", path, err)
	}
	return c.Load(ms)
}

type build struct {
	items map[string]model.Item
	ids   []string
	errs  []error
}

// Load replaces the catalog with items built from ms. Definition traits go
// to the definition stratum. Items that keep their id and type across a
// reload keep their user stratum. Members that fail are reported together
// and the rest are still loaded.
func (c *Catalog) Load(ms []Member) error {
	c.mu.RLock()
	prev := c.items
	c.mu.RUnlock()

	b := &build{items: map[string]model.Item{}}
	root := &Group{ID: "root", Name: c.env.Config.AppName}
	c.add(b, root, ms, prev)

	c.mu.Lock()
	c.items, c.ids, c.root = b.items, b.ids, root
	c.mu.Unlock()
	c.logger.Infow("catalog loaded", "items", len(b.ids), "errors", len(b.errs))
	err := loaderr.Combine("catalog", "Some catalog members could not be loaded", b.errs...)
	c.emit(telemetry.Event{Kind: telemetry.KindCatalogLoaded, Data: map[string]any{"items": len(b.ids)}}, err)
	return err
}

func (c *Catalog) emit(evt telemetry.Event, err error) {
	if err != nil {
		evt.Error = err.Error()
	}
	if terr := c.env.Telemetry.Emit(evt); terr != nil {
		c.logger.Warnw("telemetry emit failed", "error", terr)
	}
}

func (c *Catalog) add(b *build, g *Group, ms []Member, prev map[string]model.Item) {
	for _, m := range ms {
		if m.Type == TypeGroup {
			child := &Group{ID: m.ID, Name: m.Label()}
			if child.ID == "" {
				child.ID = uuid.NewString()
			}
			g.Groups = append(g.Groups, child)
			c.add(b, child, m.Members, prev)
			continue
		}
		it, err := c.build(m, b.items, prev)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		b.items[it.ID()] = it
		b.ids = append(b.ids, it.ID())
		g.Items = append(g.Items, it.ID())
	}
}

func (c *Catalog) build(m Member, built, prev map[string]model.Item) (model.Item, error) {
	if m.Type == "" {
		return nil, loaderr.New(loaderr.KindConfig, "catalog", "Missing type",
			fmt.Sprintf("catalog member %s has no type", m.Label()))
	}
	if _, dup := built[m.ID]; dup && m.ID != "" {
		return nil, loaderr.New(loaderr.KindConfig, "catalog", "Duplicate id",
			fmt.Sprintf("catalog member id %q is used more than once", m.ID))
	}
	it, err := c.reg.New(c.env, m.Type, m.ID)
	if err != nil {
		return nil, fmt.Errorf("catalog member %s: %w", m.Label(), err)
	}
	if err := it.UpdateFromJSON(strata.Definition, m.Traits); err != nil {
		return nil, err
	}
	if old, ok := prev[it.ID()]; ok && old.Type() == it.Type() {
		if user := old.Strata().Snapshot(strata.User); len(user) > 0 {
			if err := it.UpdateFromJSON(strata.User, user); err != nil {
				c.logger.Warnw("user stratum not carried over", "item", it.ID(), "error", err)
			}
		}
	}
	return it, nil
}

// Item returns the item with the given id.
func (c *Catalog) Item(id string) (model.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	return it, ok
}

// Items returns every item in file order.
func (c *Catalog) Items() []model.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Item, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.items[id]
	}
	return out
}

// Root returns the top of the group tree.
func (c *Catalog) Root() *Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

package catalog

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TerriaJS/terriajs-sub017/internal/telemetry"
)

// reloadDebounce is how long a catalog file must stay quiet before it is
// reloaded.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a catalog when its file changes. Each reload attempt sends
// its result, nil on success, to Reloads.
type Watcher struct {
	Path    string
	Reloads <-chan error

	cat     *Catalog
	reloads chan error
	done    chan struct{}
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher reloading cat from path.
func NewWatcher(cat *Catalog, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: watch %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog: watch %s: %w", path, err)
	}
	ch := make(chan error, 4)
	return &Watcher{
		Path:    abs,
		Reloads: ch,
		cat:     cat,
		reloads: ch,
		done:    make(chan struct{}),
		watcher: fw,
	}, nil
}

// Start begins watching. The directory is watched rather than the file so
// that editors replacing the file are seen.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.Path)); err != nil {
		return fmt.Errorf("catalog: watch %s: %w", w.Path, err)
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and the Reloads channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
	close(w.reloads)
}

func (w *Watcher) loop() {
	defer close(w.done)

	var pending time.Time
	ticker := time.NewTicker(reloadDebounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.Path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case now := <-ticker.C:
			if pending.IsZero() || now.Sub(pending) < reloadDebounce {
				continue
			}
			pending = time.Time{}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.cat.logger.Warnw("catalog watch error", "path", w.Path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	err := w.cat.LoadFile(w.Path)
	if err != nil {
		w.cat.logger.Warnw("catalog reload failed", "path", w.Path, "error", err)
	} else {
		w.cat.logger.Infow("catalog reloaded", "path", w.Path)
	}
	w.cat.emit(telemetry.Event{Kind: telemetry.KindCatalogReload, Data: map[string]any{"path": w.Path}}, err)
	select {
	case w.reloads <- err:
	default:
	}
}

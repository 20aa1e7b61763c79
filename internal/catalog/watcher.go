package catalog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 150 * time.Millisecond

// Watcher reloads the catalog when products.json is edited outside the
// process. The parent directory is watched because the store replaces the
// file by rename.
type Watcher struct {
	catalog  *Catalog
	path     string
	debounce time.Duration

	fs       *fsnotify.Watcher
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewWatcher(c *Catalog, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		catalog:  c,
		path:     filepath.Clean(path),
		debounce: defaultDebounce,
		fs:       fw,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fs.Add(dir); err != nil {
		w.fs.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	go w.loop()
	slog.Info("watching product catalog", "path", w.path)
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.fs.Close()
	})
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Editors emit bursts of events for one save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("catalog watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if err := w.catalog.Reload(); err != nil {
		slog.Error("catalog reload after file change failed", "error", err)
		return
	}
	slog.Info("catalog reloaded after file change", "products", w.catalog.Len())
}

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/genprop/genprop/pkg/engine"
)

// DefaultDebounce is how long TreeWatcher waits after the last change event
// before reloading.
const DefaultDebounce = 250 * time.Millisecond

// TreeWatcher reloads a property tree definition whenever the file changes.
type TreeWatcher struct {
	path     string
	loader   *Loader
	logger   zerolog.Logger
	debounce time.Duration
	onReload func(*engine.Tree)
	onError  func(error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher

	// reloadMu serializes reloads; the loader's CUE context is not safe for
	// concurrent use.
	reloadMu sync.Mutex
}

// NewTreeWatcher creates a watcher for the definition at path. onReload is
// called with each successfully reloaded tree.
func NewTreeWatcher(path string, logger zerolog.Logger, onReload func(*engine.Tree)) *TreeWatcher {
	return &TreeWatcher{
		path:     path,
		loader:   NewLoader(),
		logger:   logger.With().Str("component", "tree-watcher").Str("path", path).Logger(),
		debounce: DefaultDebounce,
		onReload: onReload,
	}
}

// WithDebounce sets the debounce duration.
func (w *TreeWatcher) WithDebounce(d time.Duration) *TreeWatcher {
	w.debounce = d
	return w
}

// OnError sets a callback for definitions that fail to reload. The previous
// tree stays in effect.
func (w *TreeWatcher) OnError(fn func(error)) *TreeWatcher {
	w.onError = fn
	return w
}

// Watch blocks until ctx is cancelled, reloading the tree on every write or
// create of the definition file.
func (w *TreeWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	abs, err := filepath.Abs(w.path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve %s: %w", w.path, err)
	}

	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()
	defer w.Stop()

	w.logger.Info().Msg("watching property definitions")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.logger.Debug().Str("op", event.Op.String()).Msg("definition changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *TreeWatcher) reload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	tree, err := w.loader.LoadTree(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to reload property definitions")
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.logger.Info().Int("properties", tree.Len()).Msg("property definitions reloaded")
	if w.onReload != nil {
		w.onReload(tree)
	}
}

// Stop closes the underlying watcher. It is safe to call more than once.
func (w *TreeWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

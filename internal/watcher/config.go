// Package watcher provides file watching with debouncing using fsnotify.
// config.go reloads the configuration file when it changes on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Dicklesworthstone/missionctl/internal/config"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives a freshly loaded and validated configuration.
type ReloadFunc func(cfg *config.Config)

// ConfigWatcher watches one config file and calls its ReloadFunc with every
// valid new version. Invalid versions are logged and skipped.
type ConfigWatcher struct {
	path     string
	onReload ReloadFunc
	debounce time.Duration
	load     func(path string) (*config.Config, error)
	logger   *slog.Logger

	watcher    *fsnotify.Watcher
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConfigWatcherOption configures a ConfigWatcher.
type ConfigWatcherOption func(*ConfigWatcher)

// WithDebounce sets the debounce interval.
func WithDebounce(d time.Duration) ConfigWatcherOption {
	return func(w *ConfigWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ConfigWatcherOption {
	return func(w *ConfigWatcher) {
		w.logger = l
	}
}

// withLoader replaces config.Load in tests.
func withLoader(load func(string) (*config.Config, error)) ConfigWatcherOption {
	return func(w *ConfigWatcher) {
		w.load = load
	}
}

// NewConfigWatcher creates a watcher for path. The parent directory is
// watched so atomic replace-by-rename saves are seen.
func NewConfigWatcher(path string, onReload ReloadFunc, opts ...ConfigWatcherOption) (*ConfigWatcher, error) {
	if onReload == nil {
		return nil, errors.New("reload callback is nil")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	w := &ConfigWatcher{
		path:     abs,
		onReload: onReload,
		debounce: DefaultDebounce,
		load:     config.Load,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	w.watcher = fw
	return w, nil
}

// Start begins watching in the background until ctx is done or Stop is called.
func (w *ConfigWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops watching and waits for the loop to exit.
func (w *ConfigWatcher) Stop() error {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *ConfigWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *ConfigWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *ConfigWatcher) reload() {
	cfg, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping current settings", "path", w.path, "error", err)
		return
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		w.logger.Warn("reloaded config is invalid, keeping current settings", "path", w.path, "error", errors.Join(errs...))
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onReload(cfg)
}

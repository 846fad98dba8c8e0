package config

import (
	"context"
	"fmt"
	"time"

	"github.com/forge/furnace-sub000/internal/logging"
	"github.com/forge/furnace-sub000/internal/repository"
)

// ReloadCallback receives every successfully validated reload.
type ReloadCallback func(cfg *Config) error

// Watcher reloads the configuration file whenever it changes on disk.
// Invalid files are logged and ignored; the previous configuration stays
// in effect.
type Watcher struct {
	path     string
	callback ReloadCallback
	watcher  *repository.Watcher
	logger   *logging.Logger
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, debounce time.Duration, callback ReloadCallback) (*Watcher, error) {
	if callback == nil {
		return nil, fmt.Errorf("callback function cannot be nil")
	}
	w := &Watcher{
		path:     path,
		callback: callback,
		logger:   logging.GetLogger("config.watcher").WithField("path", path),
	}
	fw, err := repository.NewWatcher(repository.WatcherConfig{Path: path, Debounce: debounce}, w.reload)
	if err != nil {
		return nil, err
	}
	w.watcher = fw
	return w, nil
}

// Start installs the file watch.
func (w *Watcher) Start(ctx context.Context) error {
	return w.watcher.Start(ctx)
}

// Stop ends the watch.
func (w *Watcher) Stop() error {
	return w.watcher.Stop()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Ignoring config change: %v", err)
		return
	}
	if err := w.callback(cfg); err != nil {
		w.logger.ErrorWithErr("Config reload callback failed", err)
		return
	}
	w.logger.Info("Config reloaded")
}

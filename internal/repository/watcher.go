package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forge/furnace-sub000/internal/logging"
)

// ChangeFunc is invoked after a debounced change of a watched directory.
type ChangeFunc func()

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is the directory to watch.
	Path string
	// Debounce coalesces bursts of events. Default: 500ms.
	Debounce time.Duration
}

// Watcher observes a directory with fsnotify and invokes a callback once a
// burst of changes has settled. Editors and atomic writers produce several
// events per save; the callback runs once per burst.
type Watcher struct {
	config   WatcherConfig
	onChange ChangeFunc
	logger   *logging.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
	ready   chan struct{}
	mu      sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a watcher for config.Path.
func NewWatcher(config WatcherConfig, onChange ChangeFunc) (*Watcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("watch path cannot be empty")
	}
	if onChange == nil {
		return nil, fmt.Errorf("change callback cannot be nil")
	}
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	return &Watcher{
		config:   config,
		onChange: onChange,
		logger:   logging.GetLogger("repository.watcher").WithField("path", config.Path),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// WatchDirectory marks repo dirty whenever its root changes on disk.
func WatchDirectory(repo *Directory, debounce time.Duration) (*Watcher, error) {
	return NewWatcher(WatcherConfig{Path: repo.Root(), Debounce: debounce}, repo.MarkChanged)
}

// Start begins watching and returns once the fsnotify watch is installed.
func (w *Watcher) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	errCh := make(chan error, 1)

	go w.watchLoop(watchCtx, errCh)

	select {
	case <-w.ready:
		select {
		case err := <-errCh:
			return err
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}
}

func (w *Watcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Watcher) watchLoop(ctx context.Context, errCh chan<- error) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errCh <- fmt.Errorf("failed to create file watcher: %w", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.Path); err != nil {
		errCh <- fmt.Errorf("failed to watch %s: %w", w.config.Path, err)
		return
	}
	w.logger.Debug("Watching for changes (debounce: %s)", w.config.Debounce)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.logger.Debug("Change detected: %s", event)
				w.schedule()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.Debounce, w.onChange)
}

// Stop ends the watch loop, waiting up to five seconds for it to exit.
func (w *Watcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}

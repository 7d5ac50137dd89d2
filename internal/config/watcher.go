package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rauhl/conductor/internal/logging"
)

// ReloadCallback receives every successfully loaded config, including the
// initial one. A callback error on the initial load aborts Start; on later
// reloads it is logged and the watcher keeps going.
type ReloadCallback func(cfg *Config) error

// WatcherConfig holds settings for a Watcher.
type WatcherConfig struct {
	// FilePath is the config file to watch.
	FilePath string

	// DebounceMillis coalesces bursts of file events (editors typically
	// emit several per save) into one reload. Default 500.
	DebounceMillis int
}

// Watcher reloads the config file when it changes on disk. A reload that
// fails to parse or validate keeps the previous config, so the daemon never
// acts on a half-written file.
//
// Watcher implements the component interface: Start returns once the file
// watch is established, Stop tears it down.
type Watcher struct {
	cfg      WatcherConfig
	callback ReloadCallback
	logger   *logging.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
	ready   chan struct{}
	once    sync.Once

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(cfg WatcherConfig, callback ReloadCallback) (*Watcher, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if cfg.DebounceMillis == 0 {
		cfg.DebounceMillis = 500
	}

	return &Watcher{
		cfg:      cfg,
		callback: callback,
		logger:   logging.GetLogger("config.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Name identifies the watcher in the component registry.
func (w *Watcher) Name() string {
	return "config-watcher"
}

// Start loads the config once, invokes the callback with it, and begins
// watching for changes. Returns after the file watch is established so no
// change between load and watch can be missed silently.
func (w *Watcher) Start(ctx context.Context) error {
	initial, err := Load(w.cfg.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}
	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial config callback failed: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case <-time.After(5 * time.Second):
		cancel()
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}

	w.logger.Info("Watching %s for changes (debounce: %dms)", w.cfg.FilePath, w.cfg.DebounceMillis)
	return nil
}

// Stop tears down the file watch and waits for the watch loop to exit.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}

func (w *Watcher) signalReady() {
	w.once.Do(func() { close(w.ready) })
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.ErrorWithErr("Failed to create file watcher", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.cfg.FilePath); err != nil {
		w.logger.ErrorWithErr("Failed to watch "+w.cfg.FilePath, err)
		return
	}

	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watch loop stopping")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Atomic writes unlink or rename the watched inode; re-add the
			// path after a short settle so replacement files stay watched.
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.cfg.FilePath); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error: %v", err)
		}
	}
}

// scheduleReload debounces file events by resetting a timer on each one.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.cfg.DebounceMillis)*time.Millisecond,
		w.reload,
	)
}

// reload loads the file and hands the result to the callback. Load or
// callback failures keep the previous config.
func (w *Watcher) reload() {
	cfg, err := Load(w.cfg.FilePath)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous config: %v", err)
		return
	}
	if err := w.callback(cfg); err != nil {
		w.logger.Warn("Config reload callback failed: %v", err)
		return
	}
	w.logger.Info("Config reloaded from %s", w.cfg.FilePath)
}

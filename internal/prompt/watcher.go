package prompt

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay is the time to wait after a file event before re-reading.
// This coalesces rapid successive writes into a single reload.
var debounceDelay = 100 * time.Millisecond

// newWatcherFunc creates an fsnotify watcher; tests may replace it to
// inject errors.
type newWatcherFunc func() (*fsnotify.Watcher, error)

// Watcher hot-reloads a Source when its override file changes on disk, so a
// prompt edit takes effect on the next session without a restart.
type Watcher struct {
	source *Source
	logger *slog.Logger

	watcher      *fsnotify.Watcher
	done         chan struct{}
	mu           sync.Mutex
	running      bool
	newWatcherFn newWatcherFunc // nil means use fsnotify.NewWatcher
}

// NewWatcher creates a watcher over the source's override file. Call Start
// to begin watching and Stop to release resources.
func NewWatcher(source *Source, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{source: source, logger: logger}
}

// Start begins watching. It is an error to start a watcher for a source with
// no override file, or to start one twice without an intervening Stop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.source.path == "" {
		return errors.New("prompt watcher: source has no override file")
	}
	if w.running {
		return errors.New("prompt watcher: already started")
	}

	// Watch the parent directory so we catch editor rename-and-replace
	// saves and late file creation.
	dir := filepath.Dir(w.source.path)
	newWatcher := fsnotify.NewWatcher
	if w.newWatcherFn != nil {
		newWatcher = w.newWatcherFn
	}
	watcher, err := newWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	w.running = true

	go w.eventLoop()
	return nil
}

// Stop ceases watching and releases resources. Safe to call even if not
// started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.done)
	err := w.watcher.Close()
	w.running = false
	return err
}

// eventLoop listens for fsnotify events and reloads with debouncing.
func (w *Watcher) eventLoop() {
	target := filepath.Base(w.source.path)
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				if err := w.source.Reload(); err != nil {
					w.logger.Warn("prompt reload failed", "error", err)
					return
				}
				w.logger.Info("instructions reloaded", "path", w.source.path)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("prompt watcher error", "error", err)
		}
	}
}

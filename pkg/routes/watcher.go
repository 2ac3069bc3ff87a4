package routes

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the resolver's table when its backing JSON file changes, so
// route edits land without a daemon restart.
type Watcher struct {
	resolver  *Resolver
	tablePath string
	watcher   *fsnotify.Watcher
	debounce  time.Duration

	done     chan struct{}
	stopOnce sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a watcher for the resolver's table file. The file must
// load successfully once before watching starts.
func NewWatcher(resolver *Resolver, tablePath string, debounce time.Duration) (*Watcher, error) {
	if err := resolver.Load(tablePath); err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors replace files rather than writing in place.
	if err := fsw.Add(filepath.Dir(tablePath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch routes directory: %w", err)
	}

	w := &Watcher{
		resolver:  resolver,
		tablePath: tablePath,
		watcher:   fsw,
		debounce:  debounce,
		done:      make(chan struct{}),
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.tablePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Routes watcher error")
		}
	}
}

// scheduleReload debounces bursts of write events into one reload.
func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.resolver.Load(w.tablePath); err != nil {
			log.Warn().Err(err).Str("path", w.tablePath).Msg("Route table reload failed, keeping previous table")
		}
	})
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
	})
}

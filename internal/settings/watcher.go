package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher calls a handler whenever one of the watched files is rewritten by
// another process. The directory is watched rather than the files so that
// atomic replacement by rename is seen.
type Watcher struct {
	dir     string
	log     *logger.Logger
	mu      sync.Mutex
	handles map[string]func()
}

// NewWatcher watches files inside dir.
func NewWatcher(dir string, log *logger.Logger) *Watcher {
	return &Watcher{dir: dir, log: log, handles: make(map[string]func())}
}

// OnChange registers fn for the file called name inside the directory.
func (w *Watcher) OnChange(name string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handles[filepath.Base(name)] = fn
}

// Run blocks until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	err = watcher.Add(w.dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.dispatch(event.Name)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			w.log.Warn("Settings watcher error: %v", watchErr)
		}
	}
}

func (w *Watcher) dispatch(path string) {
	w.mu.Lock()
	fn := w.handles[filepath.Base(path)]
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}

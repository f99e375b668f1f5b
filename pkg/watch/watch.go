// Package watch re-runs a callback when watched files change.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher watches files and whole directories. Files are watched through their parent directory so
// editors that replace files on save keep triggering events.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *log.Logger
	debounce time.Duration

	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]struct{}
	trees map[string]struct{}
}

// New creates a watcher. A non-positive debounce uses DefaultDebounce.
func New(logger *log.Logger, debounce time.Duration) (w *Watcher, err error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		err = errors.Wrap(err, "failed to create file watcher")
		return w, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w = &Watcher{
		watcher:  fsw,
		logger:   logger,
		debounce: debounce,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		trees:    make(map[string]struct{}),
	}
	return w, err
}

// Add watches each path. A directory matches any change directly inside it. Missing paths and URLs are skipped.
func (w *Watcher) Add(paths ...string) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if path == "" {
			continue
		}

		var abs string
		abs, err = filepath.Abs(path)
		if err != nil {
			err = errors.Wrapf(err, "failed to resolve %s", path)
			return err
		}

		info, statErr := os.Stat(abs)
		if statErr != nil {
			w.logger.Debug("not watching missing path", "path", path)
			continue
		}

		dir := filepath.Dir(abs)
		if info.IsDir() {
			dir = abs
			w.trees[abs] = struct{}{}
		} else {
			w.files[abs] = struct{}{}
		}

		if _, watched := w.dirs[dir]; watched {
			continue
		}

		err = w.watcher.Add(dir)
		if err != nil {
			err = errors.Wrapf(err, "failed to watch %s", dir)
			return err
		}
		w.dirs[dir] = struct{}{}
	}

	w.logger.Debug("added file watchers", "count", len(w.dirs))
	return err
}

func (w *Watcher) matches(name string) (ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok = w.files[name]; ok {
		return ok
	}
	_, ok = w.trees[filepath.Dir(name)]
	return ok
}

// Run calls fn with the last changed path once events settle. Failures from fn are logged and watching
// continues. Run returns when ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, changed string) error) (err error) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var pending string

	for {
		select {
		case <-ctx.Done():
			return err

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return err
			}
			if evt.Has(fsnotify.Chmod) || !w.matches(evt.Name) {
				continue
			}

			w.logger.Debug("file changed", "path", evt.Name, "op", evt.Op.String())
			pending = evt.Name
			timer.Reset(w.debounce)

		case <-timer.C:
			if pending == "" {
				continue
			}

			changed := pending
			pending = ""

			fnErr := fn(ctx, changed)
			if fnErr != nil {
				w.logger.Error("re-render failed", "path", changed, "err", fnErr)
			}

		case watchErr, ok := <-w.watcher.Errors:
			if !ok {
				return err
			}
			w.logger.Error("file watcher error", "err", watchErr)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() (err error) {
	err = w.watcher.Close()
	if err != nil {
		err = errors.Wrap(err, "failed to close file watcher")
		return err
	}
	return err
}

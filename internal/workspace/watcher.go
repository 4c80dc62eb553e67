package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher calls onChange once the workspace has been quiet for the
// debounce interval after a burst of filesystem events.
type Watcher struct {
	ws       *LocalWorkspace
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(context.Context) error
	logger   *zap.Logger
}

func NewWatcher(ws *LocalWorkspace, debounce time.Duration, onChange func(context.Context) error) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		ws:       ws,
		watcher:  w,
		debounce: debounce,
		onChange: onChange,
		logger:   ws.logger,
	}, nil
}

// Run watches until ctx is done or the watcher is closed. onChange runs on
// the calling goroutine, so calls never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addTree(w.ws.Root); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		case <-timer.C:
			if err := w.onChange(ctx); err != nil {
				w.logger.Error("recording workspace change", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// handleEvent reports whether the event concerns a tracked path.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	rel, err := filepath.Rel(w.ws.Root, event.Name)
	if err != nil {
		w.logger.Error("getting relative path", zap.Error(err))
		return false
	}
	if w.ws.ShouldIgnore(rel) {
		return false
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Error("watching new directory", zap.String("path", rel), zap.Error(err))
			}
		}
	}
	w.logger.Debug("workspace event", zap.String("path", rel), zap.String("op", event.Op.String()))
	return true
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.ws.Root, p)
		if err != nil {
			return err
		}
		if w.ws.ShouldIgnore(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

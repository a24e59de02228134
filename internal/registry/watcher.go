package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smoyen/buildhook/internal/errors"
)

// Watcher monitors the registry file and reloads the FileRegistry when it
// changes. Rapid bursts of writes (editors, atomic renames) are debounced.
type Watcher struct {
	registry     *FileRegistry
	watcher      *fsnotify.Watcher
	path         string
	stopChan     chan struct{}
	reloadChan   chan struct{}
	debounceTime time.Duration

	// onReload, when set, runs after each successful reload.
	onReload func()
}

// NewWatcher creates a watcher for the registry's backing file.
func NewWatcher(registry *FileRegistry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDaemon, "create registry watcher").Build()
	}

	absPath, err := filepath.Abs(registry.Path())
	if err != nil {
		fw.Close()
		return nil, errors.WrapError(err, errors.CategoryDaemon, "resolve registry path").Build()
	}

	return &Watcher{
		registry:     registry,
		watcher:      fw,
		path:         absPath,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: 2 * time.Second,
	}, nil
}

// OnReload registers a callback invoked after each successful reload.
func (w *Watcher) OnReload(fn func()) {
	w.onReload = fn
}

// Start begins monitoring. Watching the directory is more reliable than
// watching the file itself because editors replace files by rename.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "watch registry directory").
			WithContext("path", w.path).Build()
	}

	slog.Info("Starting registry watcher", "path", w.path)
	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing registry watcher", "error", err)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	base := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Rename):
				w.triggerReload()
			case event.Op.Has(fsnotify.Remove):
				slog.Warn("Registry file removed", "path", event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Registry watcher error", "error", err)
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case <-w.stopChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case <-w.reloadChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.debounceTime, func() {
				if err := w.registry.Load(); err != nil {
					// Keep serving the previous snapshot.
					slog.Error("Failed to reload registry", "error", err)
					return
				}
				slog.Info("Registry reloaded", "path", w.path)
				if w.onReload != nil {
					w.onReload()
				}
			})
		}
	}
}

func (w *Watcher) triggerReload() {
	select {
	case w.reloadChan <- struct{}{}:
	default:
		// Reload already pending.
	}
}

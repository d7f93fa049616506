package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mainbong/copilot_kit/internal/filesystem"
	"github.com/mainbong/copilot_kit/internal/logger"
	"github.com/mainbong/copilot_kit/internal/tools"
)

// DefaultDebounce groups the burst of events an editor save produces
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads tool manifests when they change on disk
type Watcher struct {
	path     string
	fs       filesystem.FileSystem
	watcher  *fsnotify.Watcher
	onChange func([]tools.Descriptor)
	debounce time.Duration
}

// NewWatcher creates a watcher for a manifest file or directory
func NewWatcher(fs filesystem.FileSystem, path string, onChange func([]tools.Descriptor)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		fs:       fs,
		watcher:  watcher,
		onChange: onChange,
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce changes the quiet period before a reload
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run watches until ctx is done. A manifest that fails to load is logged
// and the previous tool set stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	// Watch the parent of a single file so atomic renames are seen
	target := w.path
	single := false
	if info, err := w.fs.Stat(w.path); err == nil && !info.IsDir() {
		target = filepath.Dir(w.path)
		single = true
	}
	if err := w.watcher.Add(target); err != nil {
		return fmt.Errorf("failed to add path to watcher: %w", err)
	}

	timer := time.NewTimer(time.Hour)
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
			if !w.relevant(event, single) {
				continue
			}
			logger.Debug("manifest event %s on %s", event.Op, event.Name)
			timer.Reset(w.debounce)
		case <-timer.C:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event, single bool) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if single {
		return filepath.Clean(event.Name) == w.path
	}
	return Supported(event.Name)
}

func (w *Watcher) reload() {
	descriptors, err := Load(w.fs, w.path)
	if err != nil {
		logger.Error("failed to reload tool manifest %s: %v", w.path, err)
		return
	}
	logger.Info("reloaded %d tools from %s", len(descriptors), w.path)
	if w.onChange != nil {
		w.onChange(descriptors)
	}
}

// Close stops the underlying watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

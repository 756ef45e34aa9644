// Package watch reports edits to checklist files under a directory tree.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/logging"
)

// DefaultDebounce collapses the burst of events a single save produces.
const DefaultDebounce = 50 * time.Millisecond

// Watcher watches every directory under a root and calls back with the
// checklist files that changed since the last callback.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration
	ignore   []string
	logger   *logging.Logger

	mu       sync.Mutex
	onChange func([]string)

	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher over root and every directory below it.
func New(root string, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s: not a directory", root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		root:     root,
		debounce: DefaultDebounce,
		ignore:   []string{".git", "node_modules", ".DS_Store"},
		logger:   logging.NopLogger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// SetChangeCallback sets the function called with the changed checklist
// paths, sorted. It runs on the watch goroutine.
func (w *Watcher) SetChangeCallback(cb func([]string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = cb
}

// Start begins delivering events. Only the first call has an effect.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.loop()
	})
}

// Stop stops the watcher and waits for the loop to exit when it was
// started. Calling Stop more than once is safe. It must not be called
// from the change callback.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	if w.started.Load() {
		<-w.doneCh
	}
}

// Done is closed once the loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// addTree watches dir and its subdirectories, skipping ignored names.
func (w *Watcher) addTree(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == dir {
			return nil
		}
		if w.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("cannot watch directory", "path", path, "error", err.Error())
			}
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	return slices.Contains(w.ignore, filepath.Base(path))
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	timer := time.NewTimer(0)
	<-timer.C
	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.track(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			pending = make(map[string]struct{})

			w.mu.Lock()
			cb := w.onChange
			w.mu.Unlock()
			w.logger.Debug("checklists changed", "count", len(paths))
			if cb != nil {
				cb(paths)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err.Error())
		}
	}
}

// track reports whether event touches a checklist file. New directories
// are added to the watch set as a side effect.
func (w *Watcher) track(event fsnotify.Event) bool {
	if w.ignored(event.Name) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", event.Name, "error", err.Error())
			}
			return false
		}
	}

	if filepath.Base(event.Name) != checklist.FileName {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

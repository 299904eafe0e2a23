// ABOUTME: Watches local stem files and reports edits after a quiet period
// ABOUTME: Used to reload a session when a stem is re-rendered on disk
package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must stay quiet before it is reported
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports changed files in batches. Editors and renderers often
// write a file in several steps, so events are coalesced until no change
// has arrived for the debounce interval.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	onChange func(paths []string)
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer

	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New watches paths and calls onChange with the sorted set of files that
// changed. onChange runs on a timer goroutine.
func New(paths []string, debounce time.Duration, onChange func(paths []string), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		files:    make(map[string]bool),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		pending:  make(map[string]bool),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	// Directories are watched rather than files so atomic replace-by-rename
	// keeps being seen.
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	go w.run()
	return w, nil
}

// Close stops watching. Pending changes are discarded.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pending = nil
		w.mu.Unlock()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !w.files[name] {
				continue
			}
			w.logger.Debug("stem file changed", zap.String("path", name), zap.String("op", event.Op.String()))
			w.mark(name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) mark(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return
	}
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(paths)
	w.logger.Info("stem files changed", zap.Strings("paths", paths))
	if w.onChange != nil {
		w.onChange(paths)
	}
}

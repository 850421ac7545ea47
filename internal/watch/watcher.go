// Package watch reports settled batches of source changes below a set of
// target paths.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lintgate/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before a batch fires.
const DefaultDebounce = 500 * time.Millisecond

// tickInterval is how often pending events are checked for settling.
const tickInterval = 100 * time.Millisecond

// ErrNothingToWatch is returned by Start when none of the targets exist.
var ErrNothingToWatch = errors.New("no watchable paths")

// ChangeFunc receives the sorted, de-duplicated paths of one settled batch.
type ChangeFunc func(ctx context.Context, paths []string)

// Options tune a Watcher.
type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// Match reports whether a changed file is relevant.
	// Defaults to MatchPythonSources.
	Match func(path string) bool

	// SkipDirs names directories that are never descended into.
	// Defaults to DefaultSkipDirs.
	SkipDirs []string
}

// DefaultSkipDirs are caches and environments that tools write into.
var DefaultSkipDirs = []string{
	".git", ".hg", "__pycache__", ".mypy_cache", ".pytest_cache", ".tox",
	".nox", ".venv", "venv", ".lintgate", "node_modules", "build", "dist",
}

// ConfigFiles are checker configuration file names.
var ConfigFiles = []string{
	"setup.cfg", "setup.py", "pyproject.toml", "tox.ini", ".flake8",
	".isort.cfg", "mypy.ini", ".mypy.ini", "pylintrc", ".pylintrc",
}

var configFiles = func() map[string]bool {
	m := make(map[string]bool, len(ConfigFiles))
	for _, name := range ConfigFiles {
		m[name] = true
	}
	return m
}()

// MatchPythonSources matches Python sources and checker configuration files.
func MatchPythonSources(path string) bool {
	base := filepath.Base(path)
	if configFiles[base] {
		return true
	}
	switch filepath.Ext(base) {
	case ".py", ".pyi":
		return !strings.HasPrefix(base, ".#")
	}
	return false
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Batches       int
	Errors        int
	WatchedDirs   int
	LastEventTime time.Time
	LastEventPath string
}

// Watcher watches target paths recursively and calls onChange with each
// settled batch of relevant changes. onChange runs on the watcher goroutine,
// so batches never overlap.
type Watcher struct {
	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	targets   []string
	dirRoots  []string
	fileRoots map[string]bool
	onChange  ChangeFunc
	opts      Options
	skip      map[string]bool
	pending   map[string]struct{}
	lastEvent time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	stopped   bool
	stats     Stats
}

// New creates a Watcher for targets. Nothing is watched until Start.
func New(targets []string, onChange ChangeFunc, opts Options) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: onChange is required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Match == nil {
		opts.Match = MatchPythonSources
	}
	if opts.SkipDirs == nil {
		opts.SkipDirs = DefaultSkipDirs
	}
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}

	return &Watcher{
		watcher:   fw,
		targets:   append([]string(nil), targets...),
		fileRoots: make(map[string]bool),
		onChange:  onChange,
		opts:      opts,
		skip:      skip,
		pending:   make(map[string]struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start adds the targets and begins watching in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	for _, target := range w.targets {
		abs, err := filepath.Abs(target)
		if err != nil {
			logging.WatchWarn("Cannot resolve %s: %v", target, err)
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			logging.WatchWarn("Skipping missing target %s: %v", abs, err)
			continue
		}
		if info.IsDir() {
			w.dirRoots = append(w.dirRoots, abs)
			w.addTree(abs)
			continue
		}
		w.fileRoots[abs] = true
		if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
			logging.WatchWarn("Cannot watch %s: %v", filepath.Dir(abs), err)
			continue
		}
		w.mu.Lock()
		w.stats.WatchedDirs++
		w.mu.Unlock()
	}

	if len(w.watcher.WatchList()) == 0 {
		w.watcher.Close()
		return ErrNothingToWatch
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	logging.Watch("Watching %d director(ies) for %d target(s), debounce=%s",
		len(w.watcher.WatchList()), len(w.targets), w.opts.Debounce)

	go w.run(ctx)
	return nil
}

// addTree watches dir and every non-skipped directory below it.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.WatchDebug("Walk error at %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skip[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logging.WatchWarn("Cannot watch %s: %v", path, err)
			return nil
		}
		w.mu.Lock()
		w.stats.WatchedDirs++
		w.mu.Unlock()
		return nil
	})
}

// Stop stops the watcher and waits for the event loop to exit.
// It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	if wasRunning {
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		logging.WatchError("Error closing watcher: %v", err)
	}
	logging.Watch("Watcher stopped")
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("Context cancelled")
			return

		case <-w.stopCh:
			logging.WatchDebug("Stop signal received")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				logging.WatchDebug("Event channel closed")
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				logging.WatchDebug("Error channel closed")
				return
			}
			logging.WatchError("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	path := filepath.Clean(event.Name)

	if event.Op&fsnotify.Create != 0 && w.underDirRoot(path) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.skip[filepath.Base(path)] {
				return
			}
			w.addTree(path)
			logging.WatchDebug("Now watching new directory %s", path)
			return
		}
	}

	if !w.relevant(path) {
		return
	}

	logging.WatchDebug("%s %s", event.Op, path)

	now := time.Now()
	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.lastEvent = now
	w.stats.Events++
	w.stats.LastEventTime = now
	w.stats.LastEventPath = path
	w.mu.Unlock()
}

func (w *Watcher) relevant(path string) bool {
	if w.fileRoots[path] {
		return true
	}
	rel, ok := w.relToDirRoot(path)
	if !ok {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, dir := range parts[:len(parts)-1] {
		if w.skip[dir] {
			return false
		}
	}
	return w.opts.Match(path)
}

func (w *Watcher) underDirRoot(path string) bool {
	_, ok := w.relToDirRoot(path)
	return ok
}

func (w *Watcher) relToDirRoot(path string) (string, bool) {
	for _, root := range w.dirRoots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return rel, true
		}
	}
	return "", false
}

// flush delivers pending paths once no event has arrived for the debounce period.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 || time.Since(w.lastEvent) < w.opts.Debounce {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.stats.Batches++
	w.mu.Unlock()

	sort.Strings(paths)
	logging.Watch("Change batch: %d file(s)", len(paths))
	w.onChange(ctx, paths)
}

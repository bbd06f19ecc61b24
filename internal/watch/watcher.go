// Package watch provides recursive file system watching for dotmirror.
//
// A Watcher registers every directory under each watch target with fsnotify
// and funnels all notifications onto a single Events channel, so one
// consumer sees them in order. Filter reduces an event to the paths that
// need re-mirroring.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a ChangeEvent.
type Kind int

const (
	// KindOther covers creation, removal, rename and metadata changes.
	KindOther Kind = iota
	// KindContentModified indicates file data was written.
	KindContentModified
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindContentModified:
		return "content-modified"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// ChangeEvent is a file system change, in delivery order.
type ChangeEvent struct {
	Kind Kind
	// Op is the underlying fsnotify operation; zero for synthesized events.
	Op fsnotify.Op
	// Paths are absolute file paths, processed in order.
	Paths []string
}

// Options configures a Watcher.
type Options struct {
	// Skip excludes a directory (and everything below it) from watching.
	Skip func(dir string) bool

	// Buffer is the Events channel capacity. Defaults to 100.
	Buffer int

	Logger *slog.Logger
}

// Watcher watches watch targets recursively.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan ChangeEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
	targets []string
	skip    func(string) bool
	logger  *slog.Logger
}

// New creates a Watcher. It must be started with Start before it emits events.
func New(opts Options) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if opts.Buffer <= 0 {
		opts.Buffer = 100
	}
	if opts.Skip == nil {
		opts.Skip = func(string) bool { return false }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Watcher{
		watcher: watcher,
		events:  make(chan ChangeEvent, opts.Buffer),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		skip:    opts.Skip,
		logger:  opts.Logger,
	}, nil
}

// Start registers every directory under each target and begins delivering
// events. A target that does not exist is logged and skipped; failing to
// register an existing directory is an error, and nothing stays registered.
func (w *Watcher) Start(targets []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already running")
	}
	if w.stopped {
		return errors.New("watcher has been stopped")
	}

	var registered []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil || !info.IsDir() {
			w.logger.Warn("not watching target", "target", target, "reason", targetProblem(err))
			continue
		}

		if _, err := w.addRecursive(target); err != nil {
			for _, dir := range w.watcher.WatchList() {
				_ = w.watcher.Remove(dir)
			}
			return fmt.Errorf("failed to watch target %s: %w", target, err)
		}
		registered = append(registered, target)
	}

	w.targets = registered
	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

func targetProblem(err error) string {
	if err != nil {
		return err.Error()
	}
	return "not a directory"
}

// addRecursive registers dir and every directory below it, returning the
// regular files found along the way. Unreadable subdirectories are logged
// and skipped; a failed registration is returned.
func (w *Watcher) addRecursive(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn("cannot read directory, not watching it", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		}

		if path != dir && w.skip(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})

	return files, err
}

// Stop stops watching and closes the Events and Errors channels.
// It blocks until the event processing goroutine has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	wasRunning := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	close(w.done)

	// Closing the fsnotify watcher unblocks the event loop
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()

	if wasRunning {
		close(w.events)
		close(w.errors)
	}
	return nil
}

// Events returns the channel that emits ChangeEvents.
// This channel is closed when the watcher is stopped.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Errors returns the channel that emits watch errors.
// This channel is closed when the watcher is stopped.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Targets returns the targets that were registered by Start.
func (w *Watcher) Targets() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.targets...)
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// processEvents converts fsnotify events to ChangeEvents until stopped.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if seeded, ok := w.watchNewDir(event.Name); ok {
					if !w.emit(seeded) {
						return
					}
				}
			}

			if !w.emit(convertEvent(event)) {
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if !w.emitError(err) {
				return
			}
		}
	}
}

// watchNewDir registers a directory created after Start. Files already
// inside it were written before the watch existed, so they are returned as
// a synthesized content-modified event.
func (w *Watcher) watchNewDir(path string) (ChangeEvent, bool) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() || w.skip(path) {
		return ChangeEvent{}, false
	}

	files, err := w.addRecursive(path)
	if err != nil {
		w.emitError(fmt.Errorf("failed to watch new directory %s: %w", path, err))
	}
	w.logger.Debug("watching new directory", "path", path, "files", len(files))

	if len(files) == 0 {
		return ChangeEvent{}, false
	}
	return ChangeEvent{Kind: KindContentModified, Paths: files}, true
}

func (w *Watcher) emit(ev ChangeEvent) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}

func (w *Watcher) emitError(err error) bool {
	select {
	case w.errors <- err:
		return true
	case <-w.done:
		return false
	}
}

// convertEvent maps an fsnotify event to a ChangeEvent. Only a write is
// a content modification.
func convertEvent(event fsnotify.Event) ChangeEvent {
	kind := KindOther
	if event.Has(fsnotify.Write) {
		kind = KindContentModified
	}
	return ChangeEvent{Kind: kind, Op: event.Op, Paths: []string{event.Name}}
}

// Filter returns the paths of ev that need re-mirroring: none unless ev is a
// content modification, and of those only paths that are still regular
// files. Order is preserved.
func Filter(ev ChangeEvent) []string {
	if ev.Kind != KindContentModified {
		return nil
	}

	var paths []string
	for _, path := range ev.Paths {
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

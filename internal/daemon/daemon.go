// Package daemon runs the dotmirror pipeline.
//
// The daemon:
//  1. Takes the instance lock on the mirror root and opens (or
//     initializes) its git repository, again before every snapshot
//  2. Seeds the mirror tree with an initial sync and optional snapshot
//  3. Watches every target recursively
//  4. Mirrors each content change and snapshots the mirror, one event at a
//     time on a single consumer
//  5. Reports readiness and liveness to systemd when enabled
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mschirtzinger/dotmirror/internal/mirror"
	"github.com/mschirtzinger/dotmirror/internal/supervisor"
	"github.com/mschirtzinger/dotmirror/internal/vcs"
	"github.com/mschirtzinger/dotmirror/internal/vcs/git"
	"github.com/mschirtzinger/dotmirror/internal/watch"
)

// ErrAlreadyRunning is returned when another dotmirror holds the mirror lock.
var ErrAlreadyRunning = errors.New("another dotmirror instance is using this mirror root")

// Config holds configuration for the daemon.
type Config struct {
	// Targets are absolute directories to mirror, matched in order.
	Targets []string

	// MirrorRoot is the absolute destination directory and repository root.
	MirrorRoot string

	// Ignore holds doublestar patterns matched against target-relative paths.
	Ignore []string

	// InitialSnapshot takes a snapshot right after the initial sync.
	InitialSnapshot bool

	// Git controls snapshot metadata.
	Git git.Options

	// Notifier receives supervisor signals.
	Notifier supervisor.Notifier

	// WatchdogInterval enables watchdog pings at half this interval.
	WatchdogInterval time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialSnapshot: true,
		Git:             git.DefaultOptions(),
		Notifier:        supervisor.Nop{},
		Logger:          slog.Default(),
	}
}

// Daemon mirrors watch targets into a versioned mirror root.
type Daemon struct {
	config Config
	mirror *mirror.Mirror
	logger *slog.Logger

	mu   sync.Mutex
	lock *flock.Flock
}

// EventOutcome describes what handling one ChangeEvent did.
type EventOutcome struct {
	// Actionable is the number of paths that passed the content filter.
	Actionable int
	// Copied is the number of files written to the mirror.
	Copied int
	// Snapshot is nil when nothing was copied and no snapshot was attempted.
	Snapshot *vcs.SnapshotResult
}

// SyncOutcome describes a one-shot sync.
type SyncOutcome struct {
	Report   mirror.SyncReport
	Snapshot vcs.SnapshotResult
}

// New creates a Daemon. Nothing on disk is touched until it runs.
func New(config Config) (*Daemon, error) {
	if config.MirrorRoot == "" {
		return nil, errors.New("mirror root cannot be empty")
	}
	if !filepath.IsAbs(config.MirrorRoot) {
		return nil, fmt.Errorf("mirror root must be absolute: %s", config.MirrorRoot)
	}
	if config.Notifier == nil {
		config.Notifier = supervisor.Nop{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Git.Message == "" {
		config.Git.Message = vcs.DefaultSnapshotMessage
	}
	if !slices.Contains(config.Git.Exclude, mirror.TempGlob) {
		config.Git.Exclude = append(slices.Clone(config.Git.Exclude), mirror.TempGlob)
	}

	m, err := mirror.New(config.MirrorRoot, config.Targets, mirror.Options{
		Ignore: config.Ignore,
		Logger: config.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Daemon{
		config: config,
		mirror: m,
		logger: config.Logger,
	}, nil
}

// Mirror returns the daemon's mirror.
func (d *Daemon) Mirror() *mirror.Mirror {
	return d.mirror
}

// Open takes the instance lock on the mirror root, creating the directory
// when needed, and opens or initializes its repository. Only a lock
// failure is returned: a repository that cannot be opened is logged and
// retried before every snapshot. Open is a no-op when already open.
func (d *Daemon) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lock != nil {
		return nil
	}

	if err := os.MkdirAll(d.config.MirrorRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create mirror root: %w", err)
	}

	lock := newLock(d.config.MirrorRoot)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock mirror root: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, d.config.MirrorRoot)
	}
	d.lock = lock

	if _, err := d.repository(ctx); err != nil {
		d.logger.Error("mirror repository unavailable, retrying at the next snapshot", "error", err)
	}
	return nil
}

// Close releases the instance lock.
func (d *Daemon) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lock == nil {
		return nil
	}
	err := d.lock.Unlock()
	d.lock = nil
	return err
}

// newLock returns the instance lock for a mirror root: an flock on the
// directory itself, so it outlives the repository and is never snapshotted.
func newLock(root string) *flock.Flock {
	return flock.New(root, flock.SetFlag(os.O_RDONLY))
}

// Locked reports whether a dotmirror instance holds the lock on root.
func Locked(root string) (bool, error) {
	lock := newLock(root)
	locked, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if locked {
		return false, lock.Unlock()
	}
	return true, nil
}

// repository opens the repository at the mirror root, initializing one in
// place when it is missing. It runs before every snapshot, so a deleted
// .git directory is recreated rather than reused.
func (d *Daemon) repository(ctx context.Context) (vcs.Repository, error) {
	repo, created, err := git.OpenOrInit(ctx, d.config.MirrorRoot, d.config.Git)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror repository: %w", err)
	}
	if created {
		d.logger.Info("initialized mirror repository", "root", repo.Root())
	}
	return repo, nil
}

// Start runs the daemon until ctx is cancelled. Startup failures are
// returned; once watching, per-file and per-snapshot failures are only
// logged. Cancellation is a clean shutdown and returns nil.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("starting dotmirror", "root", d.config.MirrorRoot, "targets", len(d.config.Targets))

	if err := d.Open(ctx); err != nil {
		return err
	}
	defer d.Close()

	d.warnAmbiguousTargets()

	report := d.mirror.InitialSync(ctx, d.config.Targets)
	d.logger.Info("initial sync complete",
		"copied", report.Copied(),
		"failed", report.Failed(),
		"duration", report.Duration.Round(time.Millisecond),
	)
	if ctx.Err() != nil {
		return nil
	}

	if d.config.InitialSnapshot {
		d.snapshot(ctx)
	}

	watcher, err := watch.New(watch.Options{Skip: d.mirror.SkipDir, Logger: d.logger})
	if err != nil {
		return err
	}
	if err := watcher.Start(d.config.Targets); err != nil {
		watcher.Stop()
		return err
	}
	defer watcher.Stop()

	watched := len(watcher.Targets())
	d.logger.Info("watching targets", "count", watched)
	d.notify("ready", d.config.Notifier.Ready())
	d.notify("status", d.config.Notifier.Status(fmt.Sprintf("dotmirror: monitoring %d targets", watched)))
	supervisor.StartWatchdog(d.config.Notifier, d.config.WatchdogInterval, d.logger)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutdown signal received")
			d.notify("stopping", d.config.Notifier.Stopping())
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return errors.New("watcher stopped unexpectedly")
			}
			d.HandleEvent(ctx, ev)

		case err, ok := <-watcher.Errors():
			if !ok {
				return errors.New("watcher stopped unexpectedly")
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

func (d *Daemon) notify(signal string, err error) {
	if err != nil {
		d.logger.Warn("supervisor notification failed", "signal", signal, "error", err)
	}
}

// warnAmbiguousTargets logs nested targets and targets sharing a mirror
// subtree. Nested targets resolve to the first listed.
func (d *Daemon) warnAmbiguousTargets() {
	for _, o := range mirror.Overlaps(d.config.Targets) {
		d.logger.Warn("watch targets overlap, first listed wins", "outer", o.Outer, "inner", o.Inner)
	}
	for base, targets := range mirror.Collisions(d.config.Targets) {
		d.logger.Warn("watch targets share a mirror directory", "dir", base, "targets", targets)
	}
}

// HandleEvent mirrors every actionable path of ev, in order, and takes
// one snapshot when at least one file was copied.
func (d *Daemon) HandleEvent(ctx context.Context, ev watch.ChangeEvent) EventOutcome {
	var outcome EventOutcome

	paths := watch.Filter(ev)
	outcome.Actionable = len(paths)
	if len(paths) == 0 {
		return outcome
	}

	for _, path := range paths {
		dst, err := d.mirror.MirrorFile(path)
		switch {
		case err == nil:
			outcome.Copied++
			d.logger.Debug("mirrored file", "source", path, "dest", dst)
		case errors.Is(err, mirror.ErrIgnored):
			d.logger.Debug("ignoring change", "path", path)
		case errors.Is(err, mirror.ErrUnmapped), errors.Is(err, mirror.ErrInsideMirror):
			d.logger.Warn("change outside watch targets, not mirrored", "path", path, "error", err)
		default:
			d.logger.Warn("failed to mirror file", "path", path, "error", err)
		}
	}

	if outcome.Copied > 0 {
		result := d.snapshot(ctx)
		outcome.Snapshot = &result
	}
	return outcome
}

// snapshot commits the mirror root and logs the result. Failures are not
// returned: the next event retries from the current state.
func (d *Daemon) snapshot(ctx context.Context) vcs.SnapshotResult {
	result, err := d.trySnapshot(ctx)
	switch {
	case err != nil:
		d.logger.Error("snapshot failed", "error", err)
	case result.Outcome == vcs.Committed:
		d.logger.Info("snapshot committed",
			"commit", shortHash(result.Commit),
			"parent", shortHash(result.Parent),
			"changes", result.Changes,
		)
	default:
		d.logger.Debug("snapshot skipped, no changes")
	}
	return result
}

// trySnapshot opens (or re-creates) the repository and snapshots it,
// retrying once when the error is retryable.
func (d *Daemon) trySnapshot(ctx context.Context) (vcs.SnapshotResult, error) {
	repo, err := d.repository(ctx)
	if err != nil {
		return vcs.SnapshotResult{Outcome: vcs.Failed}, err
	}

	result, err := repo.Snapshot(ctx)
	if vcs.IsRetryable(err) && ctx.Err() == nil {
		d.logger.Debug("retrying snapshot", "error", err)
		result, err = repo.Snapshot(ctx)
	}
	return result, err
}

// Sync runs one initial sync and one snapshot without watching.
func (d *Daemon) Sync(ctx context.Context) (SyncOutcome, error) {
	if err := d.Open(ctx); err != nil {
		return SyncOutcome{}, err
	}
	defer d.Close()

	d.warnAmbiguousTargets()
	report := d.mirror.InitialSync(ctx, d.config.Targets)
	if err := ctx.Err(); err != nil {
		return SyncOutcome{Report: report}, err
	}
	return SyncOutcome{Report: report, Snapshot: d.snapshot(ctx)}, nil
}

// Snapshot takes one snapshot of the mirror root as it is.
func (d *Daemon) Snapshot(ctx context.Context) (vcs.SnapshotResult, error) {
	if err := d.Open(ctx); err != nil {
		return vcs.SnapshotResult{Outcome: vcs.Failed}, err
	}
	defer d.Close()

	return d.trySnapshot(ctx)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

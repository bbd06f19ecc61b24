package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// TargetReport summarizes the initial sync of one watch target.
type TargetReport struct {
	Target  string
	Dest    string
	Copied  int
	Skipped int
	Failed  int
	// Err is set when the target could not be synced at all.
	Err error
}

// SyncReport summarizes an initial sync across all targets.
type SyncReport struct {
	Targets  []TargetReport
	Duration time.Duration
}

// Copied returns the number of files copied across all targets.
func (r SyncReport) Copied() int {
	n := 0
	for _, t := range r.Targets {
		n += t.Copied
	}
	return n
}

// Failed returns the number of per-file failures plus unsyncable targets.
func (r SyncReport) Failed() int {
	n := 0
	for _, t := range r.Targets {
		n += t.Failed
		if t.Err != nil {
			n++
		}
	}
	return n
}

// InitialSync copies every regular file under each target into the mirror
// tree. A failure in one target is logged and recorded; the remaining
// targets are still synced. Only context cancellation stops the sync early.
func (m *Mirror) InitialSync(ctx context.Context, targets []string) SyncReport {
	start := time.Now()
	report := SyncReport{}

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}

		tr := m.syncTarget(ctx, filepath.Clean(target))
		if tr.Err != nil {
			m.logger.Error("initial sync failed for target", "target", tr.Target, "error", tr.Err)
		} else {
			m.logger.Info("initial sync complete for target",
				"target", tr.Target,
				"dest", tr.Dest,
				"copied", tr.Copied,
				"skipped", tr.Skipped,
				"failed", tr.Failed,
			)
		}
		report.Targets = append(report.Targets, tr)
	}

	report.Duration = time.Since(start)
	return report
}

func (m *Mirror) syncTarget(ctx context.Context, target string) TargetReport {
	tr := TargetReport{Target: target, Dest: m.mapper.TargetDir(target)}

	info, err := m.fs.Stat(target)
	if err != nil {
		tr.Err = fmt.Errorf("failed to stat target: %w", err)
		return tr
	}
	if !info.IsDir() {
		tr.Err = fmt.Errorf("target is not a directory: %s", target)
		return tr
	}

	root := m.mapper.Root()
	err = afero.Walk(m.fs, target, func(path string, info fs.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			m.logger.Warn("initial sync: cannot read path", "path", path, "error", walkErr)
			tr.Failed++
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == target {
			return nil
		}
		if path == root {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(target, path)
		if err != nil {
			tr.Failed++
			return nil
		}
		if m.ignore.Match(rel) {
			tr.Skipped++
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}

		if isSymlink(info) {
			resolved, err := m.fs.Stat(path)
			if err != nil || !resolved.Mode().IsRegular() {
				m.logger.Debug("initial sync: skipping symlink", "path", path)
				tr.Skipped++
				return nil
			}
		} else if !info.Mode().IsRegular() {
			tr.Skipped++
			return nil
		}

		dest := filepath.Join(tr.Dest, rel)
		if err := m.copyFile(path, dest); err != nil {
			m.logger.Warn("initial sync: copy failed", "path", path, "error", err)
			tr.Failed++
			return nil
		}
		tr.Copied++
		return nil
	})
	// The walk function only fails on cancellation
	if err != nil {
		tr.Err = fmt.Errorf("initial sync interrupted: %w", err)
	}

	return tr
}

package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mschirtzinger/dotmirror/internal/vcs"
)

// Open returns a handle for the repository rooted exactly at path.
//
// A repository that merely contains path (for example a dotfiles repo in
// $HOME when the mirror root lives below it) does not count: Open returns
// vcs.ErrNotInVCS so that the caller initializes a repository in place.
func Open(ctx context.Context, path string, opts Options) (*Git, error) {
	g := &Git{opts: withDefaults(opts)}

	if err := g.detect(ctx, path); err != nil {
		return nil, err
	}

	return g, nil
}

// detect populates git repository information
func (g *Git) detect(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil || !info.IsDir() {
		return vcs.ErrNotInVCS
	}

	// Use git rev-parse to get all info in one call
	output, err := runGit(ctx, vcs.ExecOptions{Dir: absPath, Timeout: g.opts.Timeout},
		"rev-parse", "--show-toplevel", "--absolute-git-dir")
	if err != nil {
		if vcs.IsFatal(err) {
			return err
		}
		return vcs.ErrNotInVCS
	}

	lines := vcs.ParseLines(output)
	if len(lines) < 2 {
		return fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 2", len(lines))
	}

	repoRoot := normalizeRepoRoot(lines[0])
	if repoRoot != normalizeRepoRoot(absPath) {
		return vcs.ErrNotInVCS
	}

	g.repoRoot = repoRoot
	g.vcsDir = lines[1]
	return nil
}

// normalizeRepoRoot normalizes the repository root path
// Resolves symlinks and canonicalizes case on case-insensitive filesystems
func normalizeRepoRoot(path string) string {
	// Normalize Windows paths
	path = filepath.FromSlash(path)

	// Resolve symlinks
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return filepath.Clean(path)
}

func withDefaults(opts Options) Options {
	if opts.Message == "" {
		opts.Message = vcs.DefaultSnapshotMessage
	}
	return opts
}

// Head returns the commit HEAD resolves to, or "" when HEAD is unborn.
func (g *Git) Head(ctx context.Context) (string, error) {
	output, err := g.run(ctx, nil, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if err != nil {
		// --quiet exits 1 without output when HEAD has no commit yet
		if vcs.GetExitCode(err) == 1 && len(output) == 0 {
			return "", nil
		}
		return "", err
	}
	return vcs.TrimOutput(output), nil
}

// Status returns the status of files in the working directory.
//
// Untracked files are listed individually (untracked directories are
// recursed into); ignored files and Options.Exclude paths are left out.
func (g *Git) Status(ctx context.Context) ([]vcs.FileStatus, error) {
	args := append([]string{"status", "--porcelain=v1", "-z", "--untracked-files=all", "--"}, g.pathspec()...)
	output, err := g.run(ctx, nil, args...)
	if err != nil {
		return nil, err
	}

	return parseStatus(output), nil
}

// pathspec is the whole work tree minus Options.Exclude.
func (g *Git) pathspec() []string {
	spec := []string{"."}
	for _, pattern := range g.opts.Exclude {
		spec = append(spec, ":(exclude,glob)"+pattern)
	}
	return spec
}

// parseStatus parses "git status --porcelain=v1 -z" output.
func parseStatus(output []byte) []vcs.FileStatus {
	var statuses []vcs.FileStatus
	records := vcs.ParseNullSeparated(output)

	for i := 0; i < len(records); i++ {
		line := records[i]
		if len(line) < 4 {
			continue
		}

		// Parse status format: XY filename
		// X = staged status, Y = unstaged status
		staged := line[0:1]
		unstaged := line[1:2]
		path := line[3:]

		statuses = append(statuses, vcs.FileStatus{
			Path:       path,
			Status:     parseStatusCode(unstaged),
			StagedCode: parseStatusCode(staged),
		})

		// Renames and copies carry the original path as the next record
		if staged == "R" || staged == "C" {
			i++
		}
	}

	return statuses
}

// parseStatusCode converts git status code to vcs.StatusCode
func parseStatusCode(code string) vcs.StatusCode {
	switch code {
	case " ":
		return vcs.StatusUnmodified
	case "M":
		return vcs.StatusModified
	case "A":
		return vcs.StatusAdded
	case "D":
		return vcs.StatusDeleted
	case "R":
		return vcs.StatusRenamed
	case "C":
		return vcs.StatusCopied
	case "?":
		return vcs.StatusUntracked
	case "!":
		return vcs.StatusIgnored
	case "U":
		return vcs.StatusConflict
	case "T":
		return vcs.StatusTypeChange
	default:
		return vcs.StatusUnmodified
	}
}

// ShowFile returns the content of path as recorded in rev.
func (g *Git) ShowFile(ctx context.Context, rev, path string) ([]byte, error) {
	object := rev + ":" + strings.TrimPrefix(filepath.ToSlash(path), "/")
	return g.run(ctx, nil, "show", object)
}

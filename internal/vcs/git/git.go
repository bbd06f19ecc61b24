// Package git provides the git implementation of vcs.Repository.
//
// This package wraps git commands to manage the repository rooted at the
// mirror root: opening or initializing it in place, reading working-tree
// status, and turning the working tree into a snapshot commit.
//
// Snapshots are built from plumbing commands (write-tree, commit-tree,
// update-ref) rather than "git commit" so that the parent set is always
// explicit: no parent for the first snapshot, the current HEAD commit
// otherwise. HEAD is moved with a compare-and-swap update-ref, so it only
// ever points at a complete commit object.
package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mschirtzinger/dotmirror/internal/vcs"
)

// Options configures a Git repository handle.
type Options struct {
	// Message is the commit message used for every snapshot
	Message string

	// Identity is used when git has no user.name/user.email configured.
	// A zero Identity falls back to vcs.DefaultIdentity.
	Identity vcs.Identity

	// Exclude holds glob pathspecs (for example "**/.tmp-*") left out of
	// status and staging.
	Exclude []string

	// Timeout bounds each git invocation; zero means no timeout
	Timeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Message:  vcs.DefaultSnapshotMessage,
		Identity: vcs.DefaultIdentity,
	}
}

// Git implements vcs.Repository for a git repository rooted at the mirror root.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// vcsDir is the .git directory path
	vcsDir string

	opts Options
}

var _ vcs.Repository = (*Git)(nil)

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// Root returns the repository root directory path
func (g *Git) Root() string {
	return g.repoRoot
}

// VCSDir returns the .git directory path
func (g *Git) VCSDir() string {
	return g.vcsDir
}

// Version returns the git version string
func Version(ctx context.Context) (string, error) {
	output, _, err := vcs.ExecContext(ctx, vcs.ExecOptions{}, "git", "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0"
	version := vcs.TrimOutput(output)
	version = strings.TrimPrefix(version, "git version ")

	return version, nil
}

// run executes a git subcommand in the repository root. Failures are
// returned as *vcs.GitError carrying the subcommand and stderr.
//
// GIT_DIR and GIT_WORK_TREE pin the command to this repository: if its
// git directory disappears the command fails instead of git discovering
// an enclosing repository.
func (g *Git) run(ctx context.Context, env []string, args ...string) ([]byte, error) {
	pinned := append([]string{
		"GIT_DIR=" + g.vcsDir,
		"GIT_WORK_TREE=" + g.repoRoot,
	}, env...)
	return runGit(ctx, vcs.ExecOptions{Dir: g.repoRoot, Env: pinned, Timeout: g.opts.Timeout}, args...)
}

func runGit(ctx context.Context, opts vcs.ExecOptions, args ...string) ([]byte, error) {
	// Never prompt; the daemon runs unattended
	env := []string{"GIT_TERMINAL_PROMPT=0"}
	if opts.Dir != "" {
		// Repository discovery stops at the directory itself
		env = append(env, "GIT_CEILING_DIRECTORIES="+filepath.Dir(filepath.Clean(opts.Dir)))
	}
	opts.Env = append(env, opts.Env...)

	output, stderr, err := vcs.ExecContext(ctx, opts, "git", args...)
	if err != nil {
		return output, vcs.NewGitError(args, stderr, err)
	}
	return output, nil
}


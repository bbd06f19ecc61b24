package git

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mschirtzinger/dotmirror/internal/vcs"
)

// Init creates path if needed and initializes a repository in place.
func Init(ctx context.Context, path string, opts Options) (*Git, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repository root %s: %w", path, err)
	}

	if _, err := runGit(ctx, vcs.ExecOptions{Dir: path, Timeout: opts.Timeout}, "init", "--quiet"); err != nil {
		return nil, fmt.Errorf("failed to initialize repository at %s: %w", path, err)
	}

	return Open(ctx, path, opts)
}

// OpenOrInit opens the repository rooted at path, initializing one in
// place when none exists. The second return value reports whether a new
// repository was created.
func OpenOrInit(ctx context.Context, path string, opts Options) (*Git, bool, error) {
	g, err := Open(ctx, path, opts)
	if err == nil {
		return g, false, nil
	}
	if !errors.Is(err, vcs.ErrNotInVCS) {
		return nil, false, err
	}

	g, err = Init(ctx, path, opts)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

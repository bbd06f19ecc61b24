package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/dotmirror/internal/vcs"
)

// Snapshot commits the full working tree when it differs from HEAD.
//
// Steps: status (untracked included, ignored and excluded paths left
// out) → stop with NoChanges on a clean tree → force-stage everything but
// excluded paths → write-tree →
// resolve the optional parent → resolve identity → commit-tree →
// compare-and-swap HEAD. Any failure returns Failed and leaves HEAD
// untouched, so the next call retries from the current state.
func (g *Git) Snapshot(ctx context.Context) (vcs.SnapshotResult, error) {
	failed := func(step string, err error) (vcs.SnapshotResult, error) {
		return vcs.SnapshotResult{Outcome: vcs.Failed}, fmt.Errorf("snapshot %s: %w", step, err)
	}

	statuses, err := g.Status(ctx)
	if err != nil {
		return failed("status", err)
	}
	if len(statuses) == 0 {
		return vcs.SnapshotResult{Outcome: vcs.NoChanges}, nil
	}

	// --force so mirrored files matching an ignore rule are still recorded
	add := append([]string{"add", "--all", "--force", "--"}, g.pathspec()...)
	if _, err := g.run(ctx, nil, add...); err != nil {
		return failed("stage", err)
	}

	treeOut, err := g.run(ctx, nil, "write-tree")
	if err != nil {
		return failed("write-tree", err)
	}
	tree := vcs.TrimOutput(treeOut)

	parent, err := g.Head(ctx)
	if err != nil {
		return failed("resolve HEAD", err)
	}

	// Status can report entries that stage to the same tree (a dirty
	// nested repository, for instance); that is still no change.
	if parent != "" {
		parentTree, err := g.run(ctx, nil, "rev-parse", parent+"^{tree}")
		if err != nil {
			return failed("resolve HEAD tree", err)
		}
		if vcs.TrimOutput(parentTree) == tree {
			return vcs.SnapshotResult{Outcome: vcs.NoChanges, Parent: parent}, nil
		}
	}

	id := g.Identity(ctx)

	// Unattended: never block on a signing agent
	args := []string{"commit-tree", "--no-gpg-sign", tree}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	args = append(args, "-m", g.opts.Message)

	commitOut, err := g.run(ctx, identityEnv(id), args...)
	if err != nil {
		return failed("commit-tree", err)
	}
	commit := vcs.TrimOutput(commitOut)

	if err := g.updateHead(ctx, id, commit, parent); err != nil {
		return failed("update HEAD", err)
	}

	return vcs.SnapshotResult{
		Outcome: vcs.Committed,
		Commit:  commit,
		Parent:  parent,
		Changes: len(statuses),
		Author:  id,
	}, nil
}

// updateHead moves HEAD (through its symbolic branch) to commit, but only
// if it still points at old. An empty old means HEAD must be unborn.
func (g *Git) updateHead(ctx context.Context, id vcs.Identity, commit, old string) error {
	if old == "" {
		old = strings.Repeat("0", len(commit))
	}

	// The reflog entry needs a committer identity too
	_, err := g.run(ctx, identityEnv(id), "update-ref", "-m", g.opts.Message, "HEAD", commit, old)
	if err != nil {
		var gitErr *vcs.GitError
		if errors.As(err, &gitErr) && strings.Contains(gitErr.Stderr, "expected") {
			return errors.Join(vcs.ErrHeadMoved, err)
		}
		return err
	}
	return nil
}

// Identity returns the identity snapshots are written with: the
// repository's configured user.name/user.email when both are set,
// otherwise the configured fallback, otherwise vcs.DefaultIdentity.
func (g *Git) Identity(ctx context.Context) vcs.Identity {
	configured := vcs.Identity{
		Name:  g.configValue(ctx, "user.name"),
		Email: g.configValue(ctx, "user.email"),
	}
	if !configured.IsZero() {
		return configured
	}
	if !g.opts.Identity.IsZero() {
		return g.opts.Identity
	}
	return vcs.DefaultIdentity
}

// configValue reads a git config key, returning "" when unset or unreadable.
func (g *Git) configValue(ctx context.Context, key string) string {
	output, err := g.run(ctx, nil, "config", "--get", key)
	if err != nil {
		return ""
	}
	return vcs.TrimOutput(output)
}

func identityEnv(id vcs.Identity) []string {
	return []string{
		"GIT_AUTHOR_NAME=" + id.Name,
		"GIT_AUTHOR_EMAIL=" + id.Email,
		"GIT_COMMITTER_NAME=" + id.Name,
		"GIT_COMMITTER_EMAIL=" + id.Email,
	}
}

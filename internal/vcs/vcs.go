// Package vcs holds the backend-neutral types used by the snapshot
// committer: working-tree status, commit identity, snapshot outcomes and
// commit history entries.
//
// # Architecture
//
// The daemon takes snapshots through the Repository interface. The only
// implementation is internal/vcs/git, which drives the git binary; the CLI
// uses it directly for git-specific details such as the identity in use:
//
//	repo, created, err := git.OpenOrInit(ctx, "/home/u/dotfiles", git.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	res, err := repo.Snapshot(ctx)
//	switch res.Outcome {
//	case vcs.Committed:
//	    // HEAD advanced to res.Commit
//	case vcs.NoChanges:
//	    // working tree already matches HEAD, nothing written
//	case vcs.Failed:
//	    // err explains why; nothing was written to HEAD
//	}
//
// created reports whether the repository was initialized by the call.
package vcs

import (
	"context"
	"fmt"
	"time"
)

// Type represents the VCS backend type
type Type string

const (
	// TypeGit indicates a git repository
	TypeGit Type = "git"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// Repository is the version-controlled store rooted at the mirror root.
//
// Implementations must never create a commit when the working tree matches
// HEAD, and must tolerate an unborn HEAD (a repository with no commits).
type Repository interface {
	// Name returns the VCS type
	Name() Type

	// Root returns the repository root (the mirror root)
	Root() string

	// Status returns working-tree entries that differ from HEAD, including
	// untracked files and excluding ignored ones.
	Status(ctx context.Context) ([]FileStatus, error)

	// Head returns the commit HEAD points at, or "" when HEAD is unborn.
	Head(ctx context.Context) (string, error)

	// Snapshot stages the full working tree and commits it when it differs
	// from HEAD.
	Snapshot(ctx context.Context) (SnapshotResult, error)

	// Log returns up to limit commits reachable from HEAD, newest first,
	// committed at or after since (zero since means no lower bound).
	Log(ctx context.Context, since time.Time, limit int) ([]CommitInfo, error)
}

// FileStatus represents the status of a file in the working directory
type FileStatus struct {
	// Path is the file path relative to repository root
	Path string

	// Status is the working directory status
	Status StatusCode

	// StagedCode is the staging area status
	StagedCode StatusCode
}

// StatusCode represents file status codes
type StatusCode string

const (
	StatusUnmodified StatusCode = " " // No changes
	StatusModified   StatusCode = "M" // Modified
	StatusAdded      StatusCode = "A" // Added/new file
	StatusDeleted    StatusCode = "D" // Deleted
	StatusRenamed    StatusCode = "R" // Renamed
	StatusCopied     StatusCode = "C" // Copied
	StatusUntracked  StatusCode = "?" // Untracked
	StatusIgnored    StatusCode = "!" // Ignored
	StatusConflict   StatusCode = "U" // Unmerged/conflict
	StatusTypeChange StatusCode = "T" // File type changed
)

// Identity is the author/committer recorded on a snapshot.
type Identity struct {
	Name  string
	Email string
}

// DefaultIdentity is used when neither the repository nor the settings
// provide one.
var DefaultIdentity = Identity{Name: "dotmirror", Email: "dotmirror@localhost"}

// IsZero reports whether either half of the identity is missing.
func (id Identity) IsZero() bool {
	return id.Name == "" || id.Email == ""
}

// String formats the identity as "Name <email>".
func (id Identity) String() string {
	return fmt.Sprintf("%s <%s>", id.Name, id.Email)
}

// DefaultSnapshotMessage is the commit message used for every snapshot
// unless overridden in the settings.
const DefaultSnapshotMessage = "dotmirror: automated snapshot"

// Outcome is the result kind of a snapshot attempt.
type Outcome int

const (
	// Failed means a repository operation failed; HEAD was not moved.
	Failed Outcome = iota
	// NoChanges means the working tree matched HEAD; no commit was created.
	NoChanges
	// Committed means a new commit was created and HEAD now points at it.
	Committed
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case NoChanges:
		return "no-changes"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// SnapshotResult describes one snapshot attempt.
type SnapshotResult struct {
	Outcome Outcome

	// Commit is the new commit hash (Committed only)
	Commit string

	// Parent is the previous HEAD commit, empty for the first commit
	Parent string

	// Changes is the number of status entries that triggered the commit
	Changes int

	// Author is the identity the commit was written with
	Author Identity
}

// CommitInfo describes a commit in the snapshot history
type CommitInfo struct {
	Hash    string
	Parents []string
	Author  Identity
	Time    time.Time
	Subject string
}

// ShortHash returns the first 7 characters of the commit hash.
func (c CommitInfo) ShortHash() string {
	if len(c.Hash) <= 7 {
		return c.Hash
	}
	return c.Hash[:7]
}

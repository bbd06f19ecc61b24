package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by VCS operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, vcs.ErrNotInVCS) {
//	    // the mirror root has no repository yet
//	}
var (
	// ErrNotInVCS is returned when the operation requires a repository
	// but none was found at the given root.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the git binary is not
	// installed or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrHeadMoved is returned when HEAD changed between reading the
	// parent and updating the reference to the new commit.
	ErrHeadMoved = errors.New("HEAD moved during snapshot")

	// ErrTimeout is returned when a VCS operation exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")
)

// GitError describes a failed git invocation. It keeps the subcommand and
// the trimmed stderr so log lines say which step of a snapshot broke.
type GitError struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s failed", e.Op)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *GitError) Unwrap() error {
	return e.Err
}

// NewGitError builds a GitError for the given argument vector. The first
// argument is used as the operation name.
func NewGitError(args []string, stderr string, err error) *GitError {
	op := ""
	if len(args) > 0 {
		op = args[0]
	}
	return &GitError{
		Op:     op,
		Args:   args,
		Stderr: strings.TrimSpace(stderr),
		Err:    err,
	}
}

// IsRetryable returns true if the error is likely to succeed on retry.
// The daemon retries such a snapshot once; after that the next change
// event triggers a fresh attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTimeout) {
		return true
	}

	// Someone else committed; a fresh attempt reads the new HEAD
	if errors.Is(err, ErrHeadMoved) {
		return true
	}

	return false
}

// IsFatal returns true if the error indicates a non-recoverable state
// that requires manual intervention.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Binary not available means we can't execute commands
	if errors.Is(err, ErrVCSNotAvailable) {
		return true
	}

	return false
}

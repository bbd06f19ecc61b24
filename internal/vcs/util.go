package vcs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ===================
// Command Execution Utilities
// ===================

// ExecOptions configures a single command invocation.
type ExecOptions struct {
	// Dir is the working directory
	Dir string

	// Env is appended to the current process environment
	Env []string

	// Timeout bounds the command; zero means no timeout
	Timeout time.Duration
}

// ExecContext executes a command and returns its stdout and stderr.
//
// A missing binary is reported as ErrVCSNotAvailable and an expired
// timeout as ErrTimeout, both wrapped with the original error.
//
// Example:
//
//	stdout, stderr, err := ExecContext(ctx, ExecOptions{Dir: root}, "git", "status", "--porcelain")
func ExecContext(ctx context.Context, opts ExecOptions, name string, args ...string) ([]byte, string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			err = errors.Join(ErrVCSNotAvailable, err)
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			err = errors.Join(ErrTimeout, err)
		}
		return stdout.Bytes(), stderr.String(), err
	}

	return stdout.Bytes(), stderr.String(), nil
}

// ===================
// Output Parsing Utilities
// ===================

// ParseLines splits command output into non-empty lines.
// This is a common pattern for parsing VCS command output.
func ParseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return result
}

// ParseNullSeparated splits NUL-terminated output (git's -z mode) into
// records. Records are not trimmed since paths may carry spaces.
func ParseNullSeparated(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	parts := strings.Split(string(output), "\x00")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// ===================
// String Utilities
// ===================

// TrimOutput trims whitespace and trailing newlines from command output.
func TrimOutput(output []byte) string {
	return strings.TrimSpace(string(output))
}

// ===================
// Error Utilities
// ===================

// IsExitError returns true if the error is an exit error with non-zero status.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// GetExitCode returns the exit code from an error, or -1 if not an exit error.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

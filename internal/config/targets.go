package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrRelativeTarget is returned for a watch target that is not an absolute path.
var ErrRelativeTarget = errors.New("watch target must be an absolute path")

// LoadTargets reads the watch-target list: one absolute directory path per
// line. Surrounding whitespace and blank lines are ignored. Relative paths
// and duplicates are logged and skipped. An unreadable file is an error.
func LoadTargets(path string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	defer f.Close()

	var targets []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		target, err := NormalizeTarget(line)
		if err != nil {
			logger.Error("skipping watch target", "file", path, "line", lineNo, "target", line, "error", err)
			continue
		}
		if seen[target] {
			logger.Warn("duplicate watch target", "file", path, "line", lineNo, "target", target)
			continue
		}

		seen[target] = true
		targets = append(targets, target)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	return targets, nil
}

// NormalizeTarget cleans a target path and rejects relative ones.
func NormalizeTarget(target string) (string, error) {
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("%w: %s", ErrRelativeTarget, target)
	}
	cleaned := filepath.Clean(target)
	if filepath.Base(cleaned) == string(filepath.Separator) {
		return "", fmt.Errorf("watch target %s has no base name to mirror under", target)
	}
	return cleaned, nil
}

// AppendTarget adds target to the list file, creating the file and its
// directory when needed. Adding a target already present is a no-op.
func AppendTarget(path, target string) (bool, error) {
	target, err := NormalizeTarget(target)
	if err != nil {
		return false, err
	}

	existing, err := LoadTargets(path, slog.New(slog.DiscardHandler))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	for _, t := range existing {
		if t == target {
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create targets directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open targets file: %w", err)
	}
	defer f.Close()

	if err := ensureTrailingNewline(f); err != nil {
		return false, err
	}
	if _, err := fmt.Fprintln(f, target); err != nil {
		return false, fmt.Errorf("failed to write targets file: %w", err)
	}

	return true, nil
}

func ensureTrailingNewline(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	r, err := os.Open(f.Name())
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] != '\n' {
		_, err = f.WriteString("\n")
	}
	return err
}

package mirror

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Ignore matches target-relative paths against doublestar patterns.
// Any path with a .git component is always ignored: copying a nested
// repository into the mirror would make git record it as a gitlink.
type Ignore struct {
	patterns []string
}

// NewIgnore validates and returns an ignore matcher.
func NewIgnore(patterns []string) (*Ignore, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	return &Ignore{patterns: append([]string(nil), patterns...)}, nil
}

// Match reports whether rel, a path relative to its watch target, is ignored.
func (ig *Ignore) Match(rel string) bool {
	rel = filepath.ToSlash(rel)

	for _, part := range strings.Split(rel, "/") {
		if part == ".git" {
			return true
		}
	}

	if ig == nil {
		return false
	}
	for _, p := range ig.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

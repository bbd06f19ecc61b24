package mirror

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnmapped is returned for a path that lies under no watch target.
	ErrUnmapped = errors.New("path is not under any watch target")

	// ErrInsideMirror is returned for a path inside the mirror root itself,
	// which would otherwise copy the mirror into itself.
	ErrInsideMirror = errors.New("path is inside the mirror root")
)

// Mapping is the resolved destination of one source file.
type Mapping struct {
	Target string // watch target the source lies under
	Source string // absolute source path
	Rel    string // source path relative to Target
	Dest   string // MirrorRoot/<basename(Target)>/<Rel>
}

// Mapper maps source paths into the mirror tree. Targets are matched in
// list order and the first containing target wins.
type Mapper struct {
	root    string
	targets []string
}

// NewMapper returns a mapper for the given mirror root and targets.
func NewMapper(root string, targets []string) *Mapper {
	cleaned := make([]string, len(targets))
	for i, t := range targets {
		cleaned[i] = filepath.Clean(t)
	}
	return &Mapper{root: filepath.Clean(root), targets: cleaned}
}

// Root returns the mirror root.
func (m *Mapper) Root() string {
	return m.root
}

// Targets returns the watch targets in match order.
func (m *Mapper) Targets() []string {
	return append([]string(nil), m.targets...)
}

// TargetDir returns the mirror subtree for target.
func (m *Mapper) TargetDir(target string) string {
	return filepath.Join(m.root, filepath.Base(filepath.Clean(target)))
}

// Resolve maps path to its place in the mirror tree.
func (m *Mapper) Resolve(path string) (Mapping, error) {
	path = filepath.Clean(path)

	if path == m.root || isWithin(m.root, path) {
		return Mapping{}, fmt.Errorf("%w: %s", ErrInsideMirror, path)
	}

	for _, target := range m.targets {
		if !isWithin(target, path) {
			continue
		}
		rel, err := filepath.Rel(target, path)
		if err != nil {
			continue
		}
		return Mapping{
			Target: target,
			Source: path,
			Rel:    rel,
			Dest:   filepath.Join(m.TargetDir(target), rel),
		}, nil
	}

	return Mapping{}, fmt.Errorf("%w: %s", ErrUnmapped, path)
}

// isWithin reports whether path lies strictly below dir, comparing whole
// path components so /a/nvim2 is not within /a/nvim.
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// Overlap is a pair of watch targets where Inner lies within Outer.
type Overlap struct {
	Outer string
	Inner string
}

// Overlaps reports every nested target pair. Events under Inner resolve to
// whichever of the two comes first in the target list.
func Overlaps(targets []string) []Overlap {
	var overlaps []Overlap
	for i, a := range targets {
		for _, b := range targets[i+1:] {
			a, b := filepath.Clean(a), filepath.Clean(b)
			switch {
			case a == b:
				overlaps = append(overlaps, Overlap{Outer: a, Inner: b})
			case isWithin(a, b):
				overlaps = append(overlaps, Overlap{Outer: a, Inner: b})
			case isWithin(b, a):
				overlaps = append(overlaps, Overlap{Outer: b, Inner: a})
			}
		}
	}
	return overlaps
}

// Collisions groups targets that share a base name and would therefore
// be mirrored into the same subtree. Keys are the shared base names.
func Collisions(targets []string) map[string][]string {
	byBase := make(map[string][]string)
	for _, t := range targets {
		base := filepath.Base(filepath.Clean(t))
		byBase[base] = append(byBase[base], t)
	}

	collisions := make(map[string][]string)
	for base, ts := range byBase {
		if len(ts) > 1 {
			collisions[base] = ts
		}
	}
	return collisions
}

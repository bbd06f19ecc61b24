// Package mirror reproduces watched files inside the mirror tree.
//
// Every watch target gets one subtree under the mirror root, named by the
// target's base name:
//
//	/home/u/.config/nvim/lua/init.lua -> <root>/nvim/lua/init.lua
//
// Files are only ever written, never deleted.
package mirror

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrIgnored is returned by MirrorFile for a path matching an ignore pattern.
var ErrIgnored = errors.New("path is ignored")

// Copies are written through a temp file named TempPrefix + random suffix
// next to the destination. One interrupted before its rename stays behind;
// TempGlob matches such leftovers anywhere in the mirror tree.
const (
	TempPrefix = ".dotmirror-"
	TempGlob   = "**/" + TempPrefix + "*"
)

// Options configures a Mirror.
type Options struct {
	// Fs is the filesystem sources are read from and the mirror is written
	// to. Defaults to the OS filesystem.
	Fs afero.Fs

	// Ignore holds doublestar patterns matched against target-relative paths.
	Ignore []string

	Logger *slog.Logger
}

// Mirror copies files from watch targets into the mirror root.
type Mirror struct {
	fs     afero.Fs
	mapper *Mapper
	ignore *Ignore
	logger *slog.Logger
}

// New returns a Mirror for root and targets.
func New(root string, targets []string, opts Options) (*Mirror, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("mirror root must be absolute: %s", root)
	}

	ignore, err := NewIgnore(opts.Ignore)
	if err != nil {
		return nil, err
	}

	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Mirror{
		fs:     opts.Fs,
		mapper: NewMapper(root, targets),
		ignore: ignore,
		logger: opts.Logger,
	}, nil
}

// Mapper returns the path mapper.
func (m *Mirror) Mapper() *Mapper {
	return m.mapper
}

// Root returns the mirror root.
func (m *Mirror) Root() string {
	return m.mapper.Root()
}

// SkipDir reports whether dir should not be watched: the mirror root and
// anything below it, and ignored directories under a target.
func (m *Mirror) SkipDir(dir string) bool {
	mapping, err := m.mapper.Resolve(dir)
	if errors.Is(err, ErrInsideMirror) {
		return true
	}
	return err == nil && m.ignore.Match(mapping.Rel)
}

// MirrorFile copies the file at path to its mapped place in the mirror
// tree and returns the destination. Unmapped, ignored and non-regular
// paths are rejected without touching the mirror.
func (m *Mirror) MirrorFile(path string) (string, error) {
	mapping, err := m.mapper.Resolve(path)
	if err != nil {
		return "", err
	}
	if m.ignore.Match(mapping.Rel) {
		return "", fmt.Errorf("%w: %s", ErrIgnored, path)
	}

	if err := m.copyFile(mapping.Source, mapping.Dest); err != nil {
		return "", err
	}
	return mapping.Dest, nil
}

// copyFile writes src to a temp file beside dst and renames it into place,
// so dst is always either the old or the new content.
func (m *Mirror) copyFile(src, dst string) (err error) {
	info, err := m.fs.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", src)
	}

	in, err := m.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(m.fs, dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = m.fs.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err = m.fs.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", dst, err)
	}
	if err = m.fs.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	return nil
}

// isSymlink reports whether info describes a symbolic link.
func isSymlink(info fs.FileInfo) bool {
	return info.Mode()&fs.ModeSymlink != 0
}

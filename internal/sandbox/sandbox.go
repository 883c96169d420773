// Package sandbox confines file access to a single directory tree.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrOutsideRoot = errors.New("path is outside the allowed directory")
	ErrReadOnly    = errors.New("sandbox is read-only")
	ErrTooLarge    = errors.New("file exceeds the size limit")
)

// Root is a directory that every resolved path must stay inside, symlinks
// included.
type Root struct {
	dir    string
	policy Policy
}

// New returns a Root for dir. dir must exist and be a directory.
func New(dir string, policy Policy) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %s is not a directory", dir)
	}
	return &Root{dir: resolved, policy: policy}, nil
}

func (r *Root) Dir() string    { return r.dir }
func (r *Root) Policy() Policy { return r.policy }

// Resolve maps path, absolute or relative to the root, to a resolved path
// inside the root. The path need not exist, but its nearest existing
// ancestor is resolved through symlinks before the containment check.
func (r *Root) Resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}
	path = filepath.Clean(path)

	resolved, err := evalExisting(path)
	if err != nil {
		return "", err
	}
	if !r.contains(resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return resolved, nil
}

// ResolveWrite is Resolve for paths about to be written.
func (r *Root) ResolveWrite(path string, size int64) (string, error) {
	if r.policy.ReadOnly {
		return "", ErrReadOnly
	}
	if !r.policy.AllowsSize(size) {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	return r.Resolve(path)
}

// Rel returns path relative to the root, for display.
func (r *Root) Rel(path string) string {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return path
	}
	return rel
}

func (r *Root) contains(path string) bool {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// re-appends the missing tail.
func evalExisting(path string) (string, error) {
	var tail []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, tail...)
			return filepath.Join(parts...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

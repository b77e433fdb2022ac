// Package shadow maintains the on-disk namespace tree CCASFS uses for
// directory listing, existence, and stat — separate from chunk content
// and manifests. It mirrors the logical path hierarchy with real
// directories and zero-byte files, the same "index tree" idea the
// teacher blob library keeps alongside its content store for fast
// listing without touching the blob backend.
package shadow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// sentinelName marks an otherwise-empty directory so it survives
// listing as a directory rather than disappearing entirely.
const sentinelName = ".__ccasfs_dir__"

const defaultDirPerm = 0o700

// ErrNotExist is returned for operations against a path with no entry
// in the shadow tree.
var ErrNotExist = errors.New("shadow: no such entry")

// ErrNotEmpty is returned by Removedir for a non-empty directory.
var ErrNotEmpty = errors.New("shadow: directory not empty")

// Tree is a namespace tree rooted at a local directory.
type Tree struct {
	root    string
	dirPerm os.FileMode
}

// New creates a Tree rooted at root, creating root itself if absent.
func New(root string) (*Tree, error) {
	t := &Tree{root: root, dirPerm: defaultDirPerm}
	if err := os.MkdirAll(root, t.dirPerm); err != nil {
		return nil, fmt.Errorf("shadow: create root: %w", err)
	}
	return t, nil
}

func normalize(path string) string {
	return strings.TrimPrefix(filepath.Clean("/"+path), "/")
}

func (t *Tree) abs(path string) string {
	return filepath.Join(t.root, normalize(path))
}

func (t *Tree) sentinel(path string) string {
	return filepath.Join(t.abs(path), sentinelName)
}

// Exists reports whether path has any entry — file marker or
// directory — in the shadow tree.
func (t *Tree) Exists(path string) bool {
	_, err := os.Stat(t.abs(path))
	return err == nil
}

// IsDir reports whether path is a directory in the shadow tree.
func (t *Tree) IsDir(path string) bool {
	info, err := os.Stat(t.abs(path))
	return err == nil && info.IsDir()
}

// IsFile reports whether path is a file marker in the shadow tree.
func (t *Tree) IsFile(path string) bool {
	info, err := os.Stat(t.abs(path))
	return err == nil && !info.IsDir()
}

// Makedir creates path and its parents as directories, dropping a
// sentinel file so the directory survives as empty.
func (t *Tree) Makedir(path string) error {
	dir := t.abs(path)
	if err := os.MkdirAll(dir, t.dirPerm); err != nil {
		return fmt.Errorf("shadow: makedir %s: %w", path, err)
	}
	return t.touchSentinelIfEmpty(path)
}

func (t *Tree) touchSentinelIfEmpty(path string) error {
	dir := t.abs(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("shadow: list %s: %w", path, err)
	}
	if len(entries) > 0 {
		return nil
	}
	f, err := os.Create(t.sentinel(path)) //nolint:gosec // path derived from namespace tree root
	if err != nil {
		return fmt.Errorf("shadow: create sentinel for %s: %w", path, err)
	}
	return f.Close()
}

// Removedir removes an empty directory at path (sentinel included).
func (t *Tree) Removedir(path string) error {
	dir := t.abs(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return fmt.Errorf("shadow: list %s: %w", path, err)
	}
	for _, e := range entries {
		if e.Name() != sentinelName {
			return fmt.Errorf("%w: %s", ErrNotEmpty, path)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("shadow: removedir %s: %w", path, err)
	}
	return t.dropParentSentinelIfNowEmpty(path)
}

// Touch marks path as a live file entry, creating parent directories
// (and their sentinels, removed again here since the parent is no
// longer empty) as needed.
func (t *Tree) Touch(path string) error {
	dir := filepath.Dir(normalize(path))
	if dir != "." {
		if err := t.Makedir(dir); err != nil {
			return err
		}
	}
	f, err := os.Create(t.abs(path)) //nolint:gosec // path derived from namespace tree root
	if err != nil {
		return fmt.Errorf("shadow: touch %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if dir != "." {
		return t.dropSentinel(dir)
	}
	return nil
}

func (t *Tree) dropSentinel(path string) error {
	err := os.Remove(t.sentinel(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shadow: drop sentinel for %s: %w", path, err)
	}
	return nil
}

func (t *Tree) dropParentSentinelIfNowEmpty(path string) error {
	parent := filepath.Dir(normalize(path))
	if parent == "." {
		return nil
	}
	if !t.IsDir(parent) {
		return nil
	}
	return t.touchSentinelIfEmpty(parent)
}

// Remove deletes the file entry at path.
func (t *Tree) Remove(path string) error {
	if err := os.Remove(t.abs(path)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return fmt.Errorf("shadow: remove %s: %w", path, err)
	}
	return t.dropParentSentinelIfNowEmpty(path)
}

// Rename moves the entry at oldPath to newPath.
func (t *Tree) Rename(oldPath, newPath string) error {
	newDir := filepath.Dir(normalize(newPath))
	if newDir != "." {
		if err := t.Makedir(newDir); err != nil {
			return err
		}
	}
	if err := os.Rename(t.abs(oldPath), t.abs(newPath)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, oldPath)
		}
		return fmt.Errorf("shadow: rename %s to %s: %w", oldPath, newPath, err)
	}
	if newDir != "." {
		if err := t.dropSentinel(newDir); err != nil {
			return err
		}
	}
	return t.dropParentSentinelIfNowEmpty(oldPath)
}

// Listdir lists the entries of the directory at path, hiding the
// empty-dir sentinel file.
func (t *Tree) Listdir(path string) ([]string, error) {
	entries, err := os.ReadDir(t.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return nil, fmt.Errorf("shadow: listdir %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == sentinelName {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Info describes the stat-like metadata the shadow tree can answer on
// its own (size is overridden by the caller from the catalog record).
type Info struct {
	IsDir        bool
	Size         int64
	ModifiedTime time.Time
}

// Stat returns the shadow entry's metadata for path.
func (t *Tree) Stat(path string) (Info, error) {
	fi, err := os.Stat(t.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return Info{}, fmt.Errorf("shadow: stat %s: %w", path, err)
	}
	return Info{
		IsDir:        fi.IsDir(),
		Size:         fi.Size(),
		ModifiedTime: fi.ModTime(),
	}, nil
}

// Package master coordinates chunk placement and the manifest/catalog
// metadata that make chunks addressable as files.
//
// The master owns the disk set (an ordered list of [chunkserver.Server]),
// the placement cursor, and the manifest/catalog/tombstone filesystem
// layout. It never touches chunk bytes directly — that's the client's
// job — only which slot a chunk should land on and where a file's
// metadata lives.
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ccasfs/ccasfs/catalog"
	"github.com/ccasfs/ccasfs/chunkserver"
)

// Algorithm selects how the client places chunks across the disk set.
type Algorithm string

const (
	// Mirror writes every chunk to every enabled disk. Default: any
	// value other than "stripe" collapses to this, for data safety.
	Mirror Algorithm = "mirror"
	// Stripe writes each chunk to exactly one enabled disk, chosen by
	// round robin, retried against alternate slots on failure.
	Stripe Algorithm = "stripe"
)

// Normalize collapses any algorithm value outside {stripe, mirror} to
// Mirror, per spec.md §4.3.
func (a Algorithm) Normalize() Algorithm {
	if a == Stripe {
		return Stripe
	}
	return Mirror
}

// Config configures a [Master].
type Config struct {
	// Disks is the ordered, stable-for-process-lifetime disk set. A nil
	// entry is a permanently disabled slot.
	Disks []chunkserver.Server
	// ManifestRoot is the directory manifests and tombstones live under.
	ManifestRoot string
	// CatalogRoot is the directory catalog (torrent-info) records live under.
	CatalogRoot string
	// IndexRoot is the directory the shadow namespace tree lives under.
	// The master itself does not touch this tree; it is carried here
	// because it is part of the same construction-time configuration
	// the original design groups together (spec.md §6).
	IndexRoot string
	// TempRoot is scratch space for building catalog records before
	// they are moved into place.
	TempRoot string
	// Chunksize is the chunk granularity in bytes.
	Chunksize int
	// Algorithm is the write placement policy.
	Algorithm Algorithm
	// Logger receives diagnostics. Defaults to a discard logger.
	Logger *slog.Logger
}

// ErrNotFound is returned when an operation targets a path with no live
// manifest.
var ErrNotFound = errors.New("master: not found")

const tombstonePrefix = "hidden/deleted"

// Master coordinates placement and metadata for one CCASFS instance.
type Master struct {
	cfg Config

	cursorMu sync.Mutex
	cursor   int

	pathLocksMu sync.Mutex
	pathLocks   map[string]*sync.Mutex
}

// New creates a Master over cfg. Disks are taken as-is and never
// reordered; the order given is the order the placement cursor walks.
func New(cfg Config) *Master {
	cfg.Algorithm = cfg.Algorithm.Normalize()
	return &Master{
		cfg:       cfg,
		pathLocks: make(map[string]*sync.Mutex),
	}
}

func (m *Master) log() *slog.Logger {
	if m.cfg.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.cfg.Logger
}

// Algorithm returns the configured placement algorithm.
func (m *Master) Algorithm() Algorithm { return m.cfg.Algorithm }

// Chunksize returns the configured chunk granularity in bytes.
func (m *Master) Chunksize() int { return m.cfg.Chunksize }

// Disks returns the disk set in stable order. Callers must not mutate
// the returned slice.
func (m *Master) Disks() []chunkserver.Server { return m.cfg.Disks }

// --- Placement cursor ---

// nextSlot advances the cursor while the current slot is disabled,
// records the current value as the selected slot, advances once more,
// and returns the selected index. This is the single algorithm backing
// NewSlot, RetrySlot, and HintSlot alike (spec.md §4.3): the cursor does
// not distinguish between a fresh placement, a retry, or a read hint.
func (m *Master) nextSlot() (int, error) {
	m.cursorMu.Lock()
	defer m.cursorMu.Unlock()

	n := len(m.cfg.Disks)
	if n == 0 {
		return 0, errors.New("master: no disks configured")
	}

	for range n {
		if m.cfg.Disks[m.cursor] != nil && m.cfg.Disks[m.cursor].Enabled() {
			break
		}
		m.cursor = (m.cursor + 1) % n
	}
	if m.cfg.Disks[m.cursor] == nil || !m.cfg.Disks[m.cursor].Enabled() {
		return 0, errors.New("master: no enabled disks")
	}

	selected := m.cursor
	m.cursor = (m.cursor + 1) % n
	return selected, nil
}

// NewSlot selects a disk for a fresh chunk placement.
func (m *Master) NewSlot() (int, error) { return m.nextSlot() }

// RetrySlot selects a disk to retry a placement or verification failure
// against. It shares the same cursor as NewSlot and HintSlot.
func (m *Master) RetrySlot() (int, error) { return m.nextSlot() }

// HintSlot advisorily selects a disk a chunk might be found on for a
// read. The hint is not authoritative (see spec.md §4.4 and §9); a
// verification failure on the hinted slot must fall back to RetrySlot.
func (m *Master) HintSlot() (int, error) { return m.nextSlot() }

// --- Manifest ops ---

func normalizePath(path string) string {
	return strings.TrimPrefix(path, "/")
}

func (m *Master) manifestPath(path string) string {
	return filepath.Join(m.cfg.ManifestRoot, normalizePath(path))
}

func (m *Master) lockFor(path string) *sync.Mutex {
	m.pathLocksMu.Lock()
	defer m.pathLocksMu.Unlock()
	l, ok := m.pathLocks[path]
	if !ok {
		l = &sync.Mutex{}
		m.pathLocks[path] = l
	}
	return l
}

// Alloc overwrites the manifest for path with the newline-joined digests,
// in order. This is the authoritative record of a file's chunk sequence.
func (m *Master) Alloc(_ context.Context, path string, digests []string) error {
	path = normalizePath(path)
	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return m.writeManifest(path, digests)
}

func (m *Master) writeManifest(path string, digests []string) error {
	target := m.manifestPath(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("master: create manifest directory: %w", err)
	}
	body := strings.Join(digests, "\n")
	tmp, err := os.CreateTemp(filepath.Dir(target), ".manifest-*")
	if err != nil {
		return fmt.Errorf("master: create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("master: write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("master: close temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("master: commit manifest: %w", err)
	}
	return nil
}

// AllocAppend reads the existing manifest for path, appends extra, and
// rewrites it. Fails with ErrNotFound if path has no live manifest.
func (m *Master) AllocAppend(ctx context.Context, path string, extra []string) error {
	path = normalizePath(path)
	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.readManifestLocked(path)
	if err != nil {
		return err
	}
	return m.writeManifest(path, append(existing, extra...))
}

// GetChunkDigests returns the ordered digest list for path.
func (m *Master) GetChunkDigests(_ context.Context, path string) ([]string, error) {
	path = normalizePath(path)
	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return m.readManifestLocked(path)
}

// readManifestLocked must be called with the path's lock held.
func (m *Master) readManifestLocked(path string) ([]string, error) {
	data, err := os.ReadFile(m.manifestPath(path)) //nolint:gosec // path normalized above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("master: read manifest: %w", err)
	}
	text := string(data)
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	// Tolerate a trailing empty element from a terminal newline.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// Exists reports whether path has a live manifest.
func (m *Master) Exists(_ context.Context, path string) bool {
	path = normalizePath(path)
	_, err := os.Stat(m.manifestPath(path))
	return err == nil
}

// Rename moves the manifest for old to new.
func (m *Master) Rename(_ context.Context, oldPath, newPath string) error {
	oldPath = normalizePath(oldPath)
	newPath = normalizePath(newPath)

	oldLock := m.lockFor(oldPath)
	newLock := m.lockFor(newPath)
	// Lock in a stable order to avoid deadlocking against a concurrent
	// reverse rename.
	first, second := oldLock, newLock
	if oldPath > newPath {
		first, second = newLock, oldLock
	}
	first.Lock()
	defer first.Unlock()
	if first != second {
		second.Lock()
		defer second.Unlock()
	}

	target := m.manifestPath(newPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("master: create manifest directory: %w", err)
	}
	if err := os.Rename(m.manifestPath(oldPath), target); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, oldPath)
		}
		return fmt.Errorf("master: rename manifest: %w", err)
	}
	return nil
}

// Delete tombstones the manifest for path by renaming it under
// hidden/deleted/<ISO8601>/<epoch>/<original_path>. Chunks are untouched;
// garbage collection of tombstones is out of scope (spec.md §9).
func (m *Master) Delete(ctx context.Context, path string, now time.Time) (tombstonePath string, err error) {
	path = normalizePath(path)
	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if _, statErr := os.Stat(m.manifestPath(path)); statErr != nil {
		if os.IsNotExist(statErr) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("master: stat manifest: %w", statErr)
	}

	iso := now.UTC().Format("20060102T150405Z")
	epoch := strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', -1, 64)
	tombstonePath = filepath.Join(tombstonePrefix, iso, epoch, path)

	target := filepath.Join(m.cfg.ManifestRoot, tombstonePath)
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return "", fmt.Errorf("master: create tombstone directory: %w", err)
	}
	if err := os.Rename(m.manifestPath(path), target); err != nil {
		return "", fmt.Errorf("master: tombstone manifest: %w", err)
	}
	m.log().Info("tombstoned file", "path", path, "tombstone", tombstonePath)
	return tombstonePath, nil
}

// --- Catalog ---

// WriteCatalog builds the catalog record for info and moves it into
// place at <catalog_root>/<path>, via a temp file in TempRoot so the
// move is atomic from a reader's perspective.
func (m *Master) WriteCatalog(_ context.Context, path string, info catalog.Info) error {
	path = normalizePath(path)
	data := catalog.Encode(info)

	if err := os.MkdirAll(m.cfg.TempRoot, 0o700); err != nil {
		return fmt.Errorf("master: create temp root: %w", err)
	}
	tmp, err := os.CreateTemp(m.cfg.TempRoot, ".catalog-*")
	if err != nil {
		return fmt.Errorf("master: create temp catalog: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("master: write temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("master: close temp catalog: %w", err)
	}

	target := filepath.Join(m.cfg.CatalogRoot, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("master: create catalog directory: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("master: commit catalog: %w", err)
	}
	return nil
}

// ReadCatalog decodes the catalog record for path, if one exists.
func (m *Master) ReadCatalog(_ context.Context, path string) (catalog.Info, bool) {
	path = normalizePath(path)
	data, err := os.ReadFile(filepath.Join(m.cfg.CatalogRoot, path)) //nolint:gosec
	if err != nil {
		return catalog.Info{}, false
	}
	info, err := catalog.Decode(data)
	if err != nil {
		return catalog.Info{}, false
	}
	return info, true
}

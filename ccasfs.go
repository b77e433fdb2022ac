package ccasfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ccasfs/ccasfs/catalog"
	"github.com/ccasfs/ccasfs/chunkserver"
	"github.com/ccasfs/ccasfs/client"
	"github.com/ccasfs/ccasfs/internal/shadow"
	"github.com/ccasfs/ccasfs/master"
)

// Config configures an [FS]. It holds the disk set and directory roots
// passed on to [master.Config]; chunk size, algorithm, logger,
// concurrency, and spool threshold are set through [Option] values.
type Config struct {
	// Disks is the ordered disk set; a nil entry or a disabled
	// [chunkserver.Local] is a permanently disabled slot.
	Disks []chunkserver.Server
	// ManifestRoot is the directory manifests and tombstones live under.
	ManifestRoot string
	// CatalogRoot is the directory catalog records live under.
	CatalogRoot string
	// IndexRoot is the directory the shadow namespace tree lives under.
	IndexRoot string
	// TempRoot is scratch space for catalog builds and spooled handles.
	TempRoot string
}

// FS is a CCASFS instance: a master, a client, and a namespace tree
// sharing one configuration.
type FS struct {
	master *master.Master
	client *client.Client
	tree   *shadow.Tree
	logger *slog.Logger

	chunksize      int
	algorithm      master.Algorithm
	concurrency    int
	spoolThreshold int
	tempRoot       string
}

// New builds an FS over cfg. The algorithm defaults to [master.Mirror];
// use [WithAlgorithm] to opt into striping. An explicit algorithm value
// outside {stripe, mirror} returns ErrInvalidAlgorithm.
func New(cfg Config, opts ...Option) (*FS, error) {
	fs := &FS{
		chunksize:   defaultChunksize,
		algorithm:   master.Mirror,
		concurrency: 1,
		tempRoot:    cfg.TempRoot,
	}
	for _, opt := range opts {
		opt(fs)
	}
	if fs.algorithm != master.Stripe && fs.algorithm != master.Mirror {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, fs.algorithm)
	}

	tree, err := shadow.New(cfg.IndexRoot)
	if err != nil {
		return nil, fmt.Errorf("ccasfs: build namespace tree: %w", err)
	}

	m := master.New(master.Config{
		Disks:        cfg.Disks,
		ManifestRoot: cfg.ManifestRoot,
		CatalogRoot:  cfg.CatalogRoot,
		IndexRoot:    cfg.IndexRoot,
		TempRoot:     cfg.TempRoot,
		Chunksize:    fs.chunksize,
		Algorithm:    fs.algorithm,
		Logger:       fs.logger,
	})

	clientOpts := []client.Option{client.WithConcurrency(fs.concurrency)}
	if fs.logger != nil {
		clientOpts = append(clientOpts, client.WithLogger(fs.logger))
	}

	fs.master = m
	fs.client = client.New(m, clientOpts...)
	fs.tree = tree
	return fs, nil
}

func (fs *FS) log() *slog.Logger {
	if fs.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return fs.logger
}

// Exists reports whether path names a live file or a directory in the
// namespace tree.
func (fs *FS) Exists(ctx context.Context, path string) bool {
	return fs.client.Exists(ctx, path) || fs.tree.Exists(path)
}

// IsDir reports whether path is a directory.
func (fs *FS) IsDir(path string) bool {
	return fs.tree.IsDir(path)
}

// IsFile reports whether path is a live file.
func (fs *FS) IsFile(ctx context.Context, path string) bool {
	return fs.client.Exists(ctx, path)
}

// Makedir creates path (and its parents) as a directory in the
// namespace tree. It does not affect content storage.
func (fs *FS) Makedir(path string) error {
	return fs.tree.Makedir(path)
}

// Removedir removes an empty directory from the namespace tree.
func (fs *FS) Removedir(path string) error {
	return fs.tree.Removedir(path)
}

// Listdir lists the entries of the directory at path.
func (fs *FS) Listdir(path string) ([]string, error) {
	return fs.tree.Listdir(path)
}

// Info describes a path's metadata, combining the namespace tree's
// stat fields with the catalog-derived content size (spec.md §4.5).
type Info struct {
	IsDir        bool
	Size         int64
	ModifiedTime time.Time
}

// GetInfo returns path's metadata, or ErrNotFound if path has no entry
// in the namespace tree. For a file, Size is decoded from the catalog
// record, or 0 when there is none. The catalog is not updated by
// appends, so after an append Size is the length from the last
// overwrite-write. For a directory, Size is 0.
func (fs *FS) GetInfo(ctx context.Context, path string) (Info, error) {
	shadowInfo, err := fs.tree.Stat(path)
	if err != nil {
		if errors.Is(err, shadow.ErrNotExist) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Info{}, fmt.Errorf("ccasfs: getinfo %s: %w", path, err)
	}
	info := Info{IsDir: shadowInfo.IsDir, ModifiedTime: shadowInfo.ModifiedTime}
	if !shadowInfo.IsDir {
		if cat, ok := fs.master.ReadCatalog(ctx, path); ok {
			info.Size = int64(cat.Length)
		}
	}
	return info, nil
}

// GetSize returns the byte length reported by path's catalog record,
// or 0 if none exists. The catalog is not updated by appends, so after
// an append this is the length from the last overwrite-write.
func (fs *FS) GetSize(ctx context.Context, path string) int64 {
	info, ok := fs.master.ReadCatalog(ctx, path)
	if !ok {
		return 0
	}
	return int64(info.Length)
}

// SetContents writes data at path as a single overwrite, creating the
// namespace tree entry alongside the manifest and catalog.
func (fs *FS) SetContents(ctx context.Context, path string, data []byte) error {
	if err := fs.client.Write(ctx, path, data); err != nil {
		return err
	}
	return fs.tree.Touch(path)
}

// GetContents reads and returns the full content stored at path.
func (fs *FS) GetContents(ctx context.Context, path string) ([]byte, error) {
	return fs.client.Read(ctx, path)
}

// Remove tombstones the manifest at path and drops its namespace tree
// entry.
func (fs *FS) Remove(ctx context.Context, path string) error {
	if _, err := fs.client.Delete(ctx, path); err != nil {
		return err
	}
	if fs.tree.Exists(path) {
		return fs.tree.Remove(path)
	}
	return nil
}

// Rename moves the manifest for oldPath to newPath, updating the
// namespace tree to match. The catalog record is not moved, so GetSize
// on newPath reports 0 until the next overwrite-write.
func (fs *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := fs.client.Rename(ctx, oldPath, newPath); err != nil {
		return err
	}
	if fs.tree.Exists(oldPath) {
		return fs.tree.Rename(oldPath, newPath)
	}
	return fs.tree.Touch(newPath)
}

// catalogInfoFor returns the decoded catalog record for path, if one
// exists.
func (fs *FS) catalogInfoFor(ctx context.Context, path string) (catalog.Info, bool) {
	return fs.master.ReadCatalog(ctx, path)
}

func (fs *FS) spoolDir() string {
	if fs.tempRoot == "" {
		return filepath.Join(".", "tmp")
	}
	return fs.tempRoot
}

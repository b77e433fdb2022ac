package chunkserver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ccasfs/ccasfs/digest"
)

const defaultDirPerm = 0o700

// Local is a chunkserver backed by a local filesystem root.
//
// A Local with an empty root is permanently disabled, matching spec.md
// §4.3's "null entry = permanently disabled slot".
type Local struct {
	root    string
	dirPerm os.FileMode
	logger  *slog.Logger
}

// LocalOption configures a [Local].
type LocalOption func(*Local)

// WithDirPerm sets the directory permissions used when creating fan-out
// directories. Defaults to 0700.
func WithDirPerm(mode os.FileMode) LocalOption {
	return func(l *Local) { l.dirPerm = mode }
}

// WithLogger sets the logger used for write/read diagnostics. Defaults to
// a discard logger.
func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) { l.logger = logger }
}

// NewLocal creates a chunkserver rooted at root. An empty root produces a
// permanently disabled server rather than an error, since spec.md's disk
// array uses a null root to mark a disabled slot.
func NewLocal(root string, opts ...LocalOption) *Local {
	l := &Local{root: root, dirPerm: defaultDirPerm}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.logger
}

// Enabled reports whether this server has a configured root.
func (l *Local) Enabled() bool {
	return l.root != ""
}

// Root returns the configured filesystem root, or "" if disabled.
func (l *Local) Root() string {
	return l.root
}

// path returns the fan-out chunk path for digest under this server's root.
func (l *Local) path(dig string) string {
	segments := digest.Fanout(dig)
	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, l.root)
	parts = append(parts, segments...)
	parts = append(parts, dig)
	return filepath.Join(parts...)
}

// Write stores data under digest. If a file already exists at the target
// path and its content hashes to digest, it is left untouched and
// AlreadyPresent is returned (no rewrite, no mtime bump).
func (l *Local) Write(_ context.Context, dig string, data []byte) Status {
	if !l.Enabled() {
		return NotAttempted
	}
	path := l.path(dig)

	if existing, err := os.ReadFile(path); err == nil { //nolint:gosec // path derived from digest
		if digest.Of(existing) == dig {
			return AlreadyPresent
		}
		l.log().Warn("chunk path exists with mismatched content, overwriting", "path", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), l.dirPerm); err != nil {
		l.log().Error("mkdir chunk directory failed", "path", path, "error", err)
		return Failed
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "chunk-*")
	if err != nil {
		l.log().Error("create temp chunk file failed", "path", path, "error", err)
		return Failed
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		l.log().Error("write chunk failed", "path", path, "error", err)
		return Failed
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		l.log().Error("close chunk temp file failed", "path", path, "error", err)
		return Failed
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// A concurrent writer may have already placed a valid copy.
		if existing, readErr := os.ReadFile(path); readErr == nil && digest.Of(existing) == dig { //nolint:gosec
			os.Remove(tmpPath)
			return AlreadyPresent
		}
		os.Remove(tmpPath)
		l.log().Error("rename chunk into place failed", "path", path, "error", err)
		return Failed
	}
	return Written
}

// Read returns the bytes stored under digest. Any I/O fault, including a
// missing file, yields ok=false.
func (l *Local) Read(_ context.Context, dig string) ([]byte, bool) {
	if !l.Enabled() {
		return nil, false
	}
	data, err := os.ReadFile(l.path(dig)) //nolint:gosec // path derived from digest
	if err != nil {
		return nil, false
	}
	return data, true
}

var errDisabled = errors.New("chunkserver: disabled")

// Verify reads the chunk back and confirms its content hashes to digest.
// It exists for tests and operational tooling; the client layer performs
// its own verification as part of the read protocol.
func (l *Local) Verify(ctx context.Context, dig string) error {
	if !l.Enabled() {
		return errDisabled
	}
	data, ok := l.Read(ctx, dig)
	if !ok {
		return errors.New("chunkserver: chunk not readable: " + dig)
	}
	if digest.Of(data) != dig {
		return errors.New("chunkserver: content does not match digest " + dig)
	}
	return nil
}

package ccasfs

import (
	"log/slog"

	"github.com/ccasfs/ccasfs/master"
)

// defaultChunksize is the façade's default chunk granularity, per
// spec.md §6 ("64 MiB in the filesystem façade").
const defaultChunksize = 64 * 1024 * 1024

// Option configures an [FS].
type Option func(*FS)

// WithLogger sets the logger used across the master, client, and
// façade. Defaults to a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(fs *FS) { fs.logger = logger }
}

// WithChunksize overrides the default chunk granularity in bytes.
func WithChunksize(n int) Option {
	return func(fs *FS) {
		if n > 0 {
			fs.chunksize = n
		}
	}
}

// WithAlgorithm sets the write placement algorithm. algorithm must be
// [master.Stripe] or [master.Mirror]; any other value makes New return
// ErrInvalidAlgorithm rather than silently falling back, unlike the
// master's own Normalize behavior (spec.md §7).
func WithAlgorithm(algorithm master.Algorithm) Option {
	return func(fs *FS) { fs.algorithm = algorithm }
}

// WithConcurrency bounds how many chunks a single write may place in
// flight; reads fetch chunks one at a time. See [client.WithConcurrency].
func WithConcurrency(n int) Option {
	return func(fs *FS) { fs.concurrency = n }
}

// WithSpoolThreshold overrides the in-memory threshold (bytes) a
// [Handle] buffers before spilling to a temp file in TempRoot. Defaults
// to [spool.DefaultThreshold].
func WithSpoolThreshold(n int) Option {
	return func(fs *FS) {
		if n > 0 {
			fs.spoolThreshold = n
		}
	}
}

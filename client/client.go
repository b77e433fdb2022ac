// Package client drives chunking, placement, and reassembly on top of a
// [master.Master]: splitting files into chunks on write, verifying and
// reassembling them on read, with cross-replica recovery.
package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ccasfs/ccasfs/catalog"
	"github.com/ccasfs/ccasfs/chunkserver"
	"github.com/ccasfs/ccasfs/digest"
	"github.com/ccasfs/ccasfs/master"
)

// ErrNotFound is returned by Read and WriteAppend for a path with no live
// manifest. It is the same value as [master.ErrNotFound].
var ErrNotFound = master.ErrNotFound

// ErrChunkWriteFault means a chunk could not be placed on any enabled
// disk after retrying across the disk set. The write aborts before the
// manifest is committed.
var ErrChunkWriteFault = errors.New("client: chunk could not be placed on any enabled disk")

// ErrChunkVerifyFault means a chunk's digest did not match on the hint
// slot or any retry slot. The read aborts.
var ErrChunkVerifyFault = errors.New("client: chunk could not be verified on any enabled disk")

// Client splits, places, verifies, and reassembles file content through a
// [master.Master].
type Client struct {
	master *master.Master
	logger *slog.Logger
	// concurrency bounds how many chunks are placed in flight during a
	// single Write/WriteAppend call. 1 means fully sequential. Read
	// always fetches chunks one at a time.
	concurrency int64
}

// Option configures a [Client].
type Option func(*Client)

// WithLogger sets the logger used for fault diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithConcurrency bounds how many chunks a single Write/WriteAppend call
// may place in flight; Read fetches chunks one at a time regardless. Spec.md §5 permits parallel chunk I/O as long as the
// master's cursor advances atomically per call and the manifest is
// assembled in chunk order regardless of completion order; this Client
// satisfies both by indexing results into a pre-sized slice rather than
// appending as chunks complete. Values < 1 are treated as 1 (sequential).
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.concurrency = int64(n)
	}
}

// New creates a Client driving m.
func New(m *master.Master, opts ...Option) *Client {
	c := &Client{master: m, concurrency: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// split divides data into non-overlapping windows of at most chunksize
// bytes each, in order, with a short final chunk if len(data) is not a
// multiple of chunksize. An empty input produces zero chunks, matching
// spec.md §8 invariant 3 (ceil(0/chunksize) == 0 digests) and the
// source's own write_chunks, which yields nothing for empty input.
func split(data []byte, chunksize int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	n := (len(data) + chunksize - 1) / chunksize
	chunks := make([][]byte, n)
	for i := range n {
		start := i * chunksize
		end := min(start+chunksize, len(data))
		chunks[i] = data[start:end]
	}
	return chunks
}

// Exists reports whether path has a live manifest.
func (c *Client) Exists(ctx context.Context, path string) bool {
	return c.master.Exists(ctx, path)
}

// Write stores data at path, splitting it into chunks and placing them
// per the master's configured algorithm. If path already has a live
// manifest it is tombstoned first (spec.md §4.4 overwrite semantics),
// so the new manifest is authoritative and the old chunks are orphaned.
func (c *Client) Write(ctx context.Context, path string, data []byte) error {
	if c.master.Exists(ctx, path) {
		if _, err := c.master.Delete(ctx, path, time.Now()); err != nil {
			return fmt.Errorf("client: tombstone existing file before overwrite: %w", err)
		}
	}

	digests, err := c.writeChunks(ctx, data)
	if err != nil {
		return err
	}

	if err := c.master.Alloc(ctx, path, digests); err != nil {
		return fmt.Errorf("client: commit manifest: %w", err)
	}

	info := catalog.Info{
		Length:      uint64(len(data)),
		PieceLength: uint64(c.master.Chunksize()),
		PieceHashes: concatRawDigests(digests),
	}
	if err := c.master.WriteCatalog(ctx, path, info); err != nil {
		return fmt.Errorf("client: write catalog: %w", err)
	}
	return nil
}

// WriteAppend chunks data and appends its digests to path's existing
// manifest. Fails with ErrNotFound if path has no live manifest. The
// catalog is not updated — a known gap carried from the source design
// (spec.md §9): getsize after an append reports the pre-append length
// until the next overwrite-write.
func (c *Client) WriteAppend(ctx context.Context, path string, data []byte) error {
	if !c.master.Exists(ctx, path) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	digests, err := c.writeChunks(ctx, data)
	if err != nil {
		return err
	}

	if err := c.master.AllocAppend(ctx, path, digests); err != nil {
		return fmt.Errorf("client: commit append: %w", err)
	}
	return nil
}

// writeChunks splits data and places every chunk, returning the ordered
// digest list. No manifest is touched; callers commit it afterward.
func (c *Client) writeChunks(ctx context.Context, data []byte) ([]string, error) {
	chunks := split(data, c.master.Chunksize())
	digests := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(c.concurrency)

	var acquireErr error
	for i, chunk := range chunks {
		if err := sem.Acquire(gctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			d := digest.Of(chunk)
			if err := c.placeChunk(gctx, d, chunk); err != nil {
				return err
			}
			digests[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, acquireErr
	}
	return digests, nil
}

// placeChunk writes one chunk per the configured placement algorithm.
func (c *Client) placeChunk(ctx context.Context, d string, data []byte) error {
	switch c.master.Algorithm() {
	case master.Stripe:
		return c.placeStripe(ctx, d, data)
	default:
		return c.placeMirror(ctx, d, data)
	}
}

func (c *Client) placeStripe(ctx context.Context, d string, data []byte) error {
	disks := c.master.Disks()
	attempts := 1 + len(disks)
	for range attempts {
		slot, err := c.master.NewSlot()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrChunkWriteFault, err)
		}
		status := disks[slot].Write(ctx, d, data)
		if writeSucceeded(status) {
			return nil
		}
	}
	return fmt.Errorf("%w: digest %s", ErrChunkWriteFault, d)
}

func (c *Client) placeMirror(ctx context.Context, d string, data []byte) error {
	disks := c.master.Disks()
	copies := 0
	for _, disk := range disks {
		if disk == nil || !disk.Enabled() {
			continue
		}
		status := disk.Write(ctx, d, data)
		if writeSucceeded(status) {
			copies++
		}
	}
	if copies == 0 {
		return fmt.Errorf("%w: digest %s", ErrChunkWriteFault, d)
	}
	return nil
}

// Read reassembles the file stored at path, verifying and recovering
// each chunk per spec.md §4.4's read protocol.
func (c *Client) Read(ctx context.Context, path string) ([]byte, error) {
	digests, err := c.master.GetChunkDigests(ctx, path)
	if err != nil {
		return nil, err
	}

	disks := c.master.Disks()
	chunks := make([][]byte, len(digests))

	for i, d := range digests {
		chunk, err := c.readChunk(ctx, disks, d)
		if err != nil {
			return nil, err
		}
		chunks[i] = chunk
	}

	total := 0
	for _, ch := range chunks {
		total += len(ch)
	}
	out := make([]byte, 0, total)
	for _, ch := range chunks {
		out = append(out, ch...)
	}
	return out, nil
}

func (c *Client) readChunk(ctx context.Context, disks []chunkserver.Server, d string) ([]byte, error) {
	hintSlot, err := c.master.HintSlot()
	if err == nil {
		if data, ok := disks[hintSlot].Read(ctx, d); ok && digest.Of(data) == d {
			return data, nil
		}
	}

	for range len(disks) {
		slot, err := c.master.RetrySlot()
		if err != nil {
			break
		}
		data, ok := disks[slot].Read(ctx, d)
		if ok && digest.Of(data) == d {
			return data, nil
		}
	}

	c.log().Error("chunk verification failed on every enabled disk", "digest", d)
	return nil, fmt.Errorf("%w: digest %s", ErrChunkVerifyFault, d)
}

// Delete tombstones the manifest for path.
func (c *Client) Delete(ctx context.Context, path string) (tombstonePath string, err error) {
	return c.master.Delete(ctx, path, time.Now())
}

// Rename moves the manifest for path.
func (c *Client) Rename(ctx context.Context, oldPath, newPath string) error {
	return c.master.Rename(ctx, oldPath, newPath)
}

func writeSucceeded(status chunkserver.Status) bool {
	return status == chunkserver.Written || status == chunkserver.AlreadyPresent
}

func concatRawDigests(digests []string) []byte {
	out := make([]byte, 0, len(digests)*32)
	for _, d := range digests {
		raw, err := hex.DecodeString(d)
		if err != nil {
			continue
		}
		out = append(out, raw...)
	}
	return out
}

package ccasfs

import (
	"errors"

	"github.com/ccasfs/ccasfs/client"
	"github.com/ccasfs/ccasfs/internal/shadow"
)

// Errors re-exported from client.
var (
	// ErrNotFound is returned by Open, GetContents, GetInfo, and related
	// operations against a path with no live manifest.
	ErrNotFound = client.ErrNotFound

	// ErrChunkWriteFault is returned when a chunk could not be placed on
	// any enabled disk; the write aborts before the manifest is committed.
	ErrChunkWriteFault = client.ErrChunkWriteFault

	// ErrChunkVerifyFault is returned when a chunk could not be verified
	// on any enabled disk during read.
	ErrChunkVerifyFault = client.ErrChunkVerifyFault
)

// Errors re-exported from the namespace tree.
var (
	// ErrNotEmpty is returned by Removedir for a non-empty directory.
	ErrNotEmpty = shadow.ErrNotEmpty
)

// ErrInvalidAlgorithm is returned at construction when an explicit
// write algorithm outside {stripe, mirror} is given. Unlike the master,
// which silently collapses an invalid algorithm to mirror, the façade
// rejects it outright (spec.md §7).
var ErrInvalidAlgorithm = errors.New("ccasfs: invalid write algorithm")

// ErrClosed is returned by Handle operations performed after Close.
var ErrClosed = errors.New("ccasfs: handle is closed")

// ErrBadWhence is returned by Handle.Seek for an unrecognized whence.
var ErrBadWhence = errors.New("ccasfs: invalid seek whence")

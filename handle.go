package ccasfs

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ccasfs/ccasfs/internal/spool"
)

// Mode selects how [FS.Open] behaves. It deliberately mirrors the
// three modes the source façade (ccasfile.py) distinguishes rather
// than a POSIX-style flag bitmask.
type Mode string

const (
	// ModeRead opens an existing file for reading only.
	ModeRead Mode = "r"
	// ModeWrite opens (or creates) a file, discarding any existing
	// content on commit — an overwrite.
	ModeWrite Mode = "w"
	// ModeAppend opens (or creates) a file positioned at its end; bytes
	// written land after the existing content on commit.
	ModeAppend Mode = "a"
)

// Handle is a buffered, seekable file-like object over an [FS] path,
// backed by a [spool.Buffer]. Open returns one handle per logical open.
// Every Handle method locks Handle.mu, so concurrent operations on one
// handle run one at a time.
type Handle struct {
	mu sync.Mutex

	fs   *FS
	path string
	mode Mode

	buf  *spool.Buffer
	open bool

	existedAtOpen bool
	remoteLoaded  bool
	changed       bool
	appendOnly    bool // true once this commit is known to be a pure append
	origLen       int64
}

// Open returns a buffered handle over path. ModeRead fails with
// ErrNotFound if path has no live manifest. ModeWrite and ModeAppend
// create the file on first commit if it does not already exist.
func (fs *FS) Open(ctx context.Context, path string, mode Mode) (*Handle, error) {
	existed := fs.client.Exists(ctx, path)
	if mode == ModeRead && !existed {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	h := &Handle{
		fs:            fs,
		path:          path,
		mode:          mode,
		buf:           spool.New(fs.spoolDir(), fs.spoolThreshold),
		open:          true,
		existedAtOpen: existed,
	}

	switch mode {
	case ModeRead:
		// Lazy fill: defer the whole-object fetch until it's actually
		// needed by Read, Seek, or Truncate.
	case ModeWrite:
		h.remoteLoaded = true
		h.changed = true
	case ModeAppend:
		if existed {
			if err := h.fillRemote(ctx); err != nil {
				return nil, err
			}
			h.origLen = h.buf.Len()
			if _, err := h.buf.Seek(0, io.SeekEnd); err != nil {
				return nil, fmt.Errorf("ccasfs: seek to end on append open: %w", err)
			}
		} else {
			h.remoteLoaded = true
			h.changed = true
		}
		h.appendOnly = existed
	default:
		return nil, fmt.Errorf("ccasfs: unknown open mode %q", mode)
	}
	return h, nil
}

// fillRemote fetches the whole object from the client into buf,
// preserving the current position, per spec.md §4.5's "current design:
// whole-object fetch" note.
func (h *Handle) fillRemote(ctx context.Context) error {
	if h.remoteLoaded {
		return nil
	}
	content, err := h.fs.client.Read(ctx, h.path)
	if err != nil {
		return fmt.Errorf("ccasfs: fetch %s: %w", h.path, err)
	}
	pos, err := h.buf.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := h.buf.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := h.buf.Write(content); err != nil {
		return fmt.Errorf("ccasfs: fill buffer for %s: %w", h.path, err)
	}
	if _, err := h.buf.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	h.remoteLoaded = true
	return nil
}

// Read reads up to len(p) bytes at the current position, pulling the
// remote object in on first use for a handle that hasn't buffered it
// yet.
func (h *Handle) Read(ctx context.Context, p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return 0, ErrClosed
	}
	if !h.remoteLoaded && h.existedAtOpen {
		if err := h.fillRemote(ctx); err != nil {
			return 0, err
		}
	}
	n, err := h.buf.Read(p)
	if err == io.EOF {
		return n, io.EOF
	}
	if err != nil {
		return n, fmt.Errorf("ccasfs: read %s: %w", h.path, err)
	}
	return n, nil
}

// Write stores p at the current position, extending the buffer as
// needed. The write is only visible to other readers/opens after
// Flush or Close commits it.
func (h *Handle) Write(ctx context.Context, p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return 0, ErrClosed
	}
	if !h.remoteLoaded && h.existedAtOpen {
		if err := h.fillRemote(ctx); err != nil {
			return 0, err
		}
	}
	n, err := h.buf.Write(p)
	if err != nil {
		return n, fmt.Errorf("ccasfs: write %s: %w", h.path, err)
	}
	h.changed = true
	return n, nil
}

// Seek repositions the handle, pulling remote bytes up to the target
// offset first if the full object has not been loaded yet.
func (h *Handle) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return 0, ErrClosed
	}
	if whence != io.SeekStart && whence != io.SeekCurrent && whence != io.SeekEnd {
		return 0, ErrBadWhence
	}
	if !h.remoteLoaded && h.existedAtOpen {
		if err := h.fillRemote(ctx); err != nil {
			return 0, err
		}
	}
	pos, err := h.buf.Seek(offset, whence)
	if err != nil {
		return 0, fmt.Errorf("ccasfs: seek %s: %w", h.path, err)
	}
	return pos, nil
}

// Truncate shrinks or extends the buffer to size. As a heuristic
// carried over from the source design (spec.md §9), if size equals the
// position just before this call plus one, the handle is switched to
// append-only commit semantics regardless of the mode it was opened
// with — callers relying on this quirk should not be surprised by it,
// but it is not "fixed" here.
func (h *Handle) Truncate(ctx context.Context, size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return ErrClosed
	}
	pos, err := h.buf.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if size == pos+1 {
		h.appendOnly = true
	}
	if !h.remoteLoaded && h.existedAtOpen && h.buf.Len() < size {
		if err := h.fillRemote(ctx); err != nil {
			return err
		}
	}
	if err := h.buf.Truncate(size); err != nil {
		return fmt.Errorf("ccasfs: truncate %s: %w", h.path, err)
	}
	h.changed = true
	return nil
}

// Flush commits buffered writes to the client without closing the
// handle.
func (h *Handle) Flush(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return ErrClosed
	}
	return h.commit(ctx)
}

func (h *Handle) commit(ctx context.Context) error {
	if !h.changed {
		return nil
	}
	if !h.remoteLoaded {
		if err := h.fillRemote(ctx); err != nil {
			return err
		}
	}

	content, err := h.buf.Bytes()
	if err != nil {
		return fmt.Errorf("ccasfs: read back buffer for %s: %w", h.path, err)
	}

	if h.appendOnly && h.existedAtOpen {
		tail := content
		if int64(len(content)) > h.origLen {
			tail = content[h.origLen:]
		}
		if err := h.fs.client.WriteAppend(ctx, h.path, tail); err != nil {
			return err
		}
	} else {
		if err := h.fs.SetContents(ctx, h.path, content); err != nil {
			return err
		}
	}
	h.changed = false
	h.existedAtOpen = true
	h.origLen = int64(len(content))
	return nil
}

// Close commits any pending writes and releases the handle's spooled
// buffer. Close is idempotent.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return nil
	}
	commitErr := h.commit(ctx)
	closeErr := h.buf.Close()
	h.open = false
	if commitErr != nil {
		return commitErr
	}
	if closeErr != nil {
		return fmt.Errorf("ccasfs: close spool buffer for %s: %w", h.path, closeErr)
	}
	return nil
}

// Package spool implements a buffer that stays in memory up to a
// configured threshold and spills to a real temp file once it grows
// past it — the same trick Python's SpooledTemporaryFile plays, which
// the source façade (ccasfile.py) wraps every open handle around. The
// teacher library buffers small writes in a bytes.Buffer and commits
// them in one shot (cache/sink.go's bufferCommitter); Buffer generalizes
// that to arbitrarily large content without holding all of it in RAM.
package spool

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// DefaultThreshold is the in-memory ceiling before a Buffer spills to
// disk, matching the façade's default spooled-file threshold.
const DefaultThreshold = 64 * 1024

// Buffer is a seekable, truncatable, growable byte buffer that spills
// to a temp file in dir once its content exceeds threshold bytes. It is
// not safe for concurrent use; callers serialize access (the façade
// does this with a per-handle mutex).
type Buffer struct {
	dir       string
	threshold int

	mem     bytes.Buffer
	file    *os.File
	spilled bool

	size int64
	pos  int64
}

// New creates an empty Buffer that spills into dir once it exceeds
// threshold bytes. threshold <= 0 uses DefaultThreshold.
func New(dir string, threshold int) *Buffer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Buffer{dir: dir, threshold: threshold}
}

// Len returns the current content length.
func (b *Buffer) Len() int64 { return b.size }

func (b *Buffer) spillToFile() error {
	if b.spilled {
		return nil
	}
	f, err := os.CreateTemp(b.dir, ".ccasfs-spool-*")
	if err != nil {
		return fmt.Errorf("spool: create temp file: %w", err)
	}
	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("spool: spill to temp file: %w", err)
	}
	b.file = f
	b.spilled = true
	b.mem.Reset()
	return nil
}

// Write appends p at the current position, extending the buffer and
// overwriting in place if the position is before the end, spilling to
// a temp file if the result would exceed the in-memory threshold.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end := b.pos + int64(len(p))
	if !b.spilled && end > int64(b.threshold) {
		if err := b.spillToFile(); err != nil {
			return 0, err
		}
	}

	if b.spilled {
		if _, err := b.file.WriteAt(p, b.pos); err != nil {
			return 0, fmt.Errorf("spool: write: %w", err)
		}
	} else {
		content := b.mem.Bytes()
		if b.pos < int64(len(content)) {
			n := copy(content[b.pos:], p)
			if n < len(p) {
				b.mem.Write(p[n:])
			}
		} else {
			if gap := b.pos - int64(len(content)); gap > 0 {
				b.mem.Write(make([]byte, gap))
			}
			b.mem.Write(p)
		}
	}

	b.pos = end
	if end > b.size {
		b.size = end
	}
	return len(p), nil
}

// Read reads up to len(p) bytes from the current position, advancing
// it. Returns io.EOF once the position reaches the end of content.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= b.size {
		return 0, io.EOF
	}
	remaining := b.size - b.pos
	want := int64(len(p))
	if want > remaining {
		want = remaining
	}

	var n int
	var err error
	if b.spilled {
		n, err = b.file.ReadAt(p[:want], b.pos)
		if err == io.EOF {
			err = nil
		}
	} else {
		n = copy(p[:want], b.mem.Bytes()[b.pos:])
	}
	b.pos += int64(n)
	if err != nil {
		return n, fmt.Errorf("spool: read: %w", err)
	}
	return n, nil
}

// Seek repositions the current offset per io.Seeker semantics.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = b.pos + offset
	case io.SeekEnd:
		target = b.size + offset
	default:
		return 0, fmt.Errorf("spool: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("spool: negative seek position %d", target)
	}
	b.pos = target
	return b.pos, nil
}

// Truncate shrinks or extends content to size, zero-filling on growth.
func (b *Buffer) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("spool: negative truncate size %d", size)
	}
	if b.spilled {
		if err := b.file.Truncate(size); err != nil {
			return fmt.Errorf("spool: truncate: %w", err)
		}
	} else if size > int64(b.mem.Len()) {
		b.mem.Write(make([]byte, size-int64(b.mem.Len())))
	} else {
		b.mem.Truncate(int(size))
	}
	b.size = size
	if b.pos > size {
		b.pos = size
	}
	return nil
}

// Bytes returns the full content as a single slice. It is only cheap
// while the buffer has not spilled; once spilled it reads the whole
// temp file back into memory.
func (b *Buffer) Bytes() ([]byte, error) {
	if !b.spilled {
		return append([]byte(nil), b.mem.Bytes()...), nil
	}
	out := make([]byte, b.size)
	if _, err := b.file.ReadAt(out, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("spool: read back spilled content: %w", err)
	}
	return out, nil
}

// Close releases the backing temp file, if any.
func (b *Buffer) Close() error {
	if !b.spilled {
		return nil
	}
	name := b.file.Name()
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("spool: close temp file: %w", err)
	}
	return os.Remove(name)
}

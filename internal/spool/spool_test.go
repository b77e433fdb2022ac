package spool

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadStaysInMemoryBelowThreshold(t *testing.T) {
	t.Parallel()

	b := New(t.TempDir(), 1024)
	n, err := b.Write([]byte("hello spool"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = b.Seek(0, io.SeekStart)
	require.NoError(t, err)

	got := make([]byte, 11)
	n, err = b.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "hello spool", string(got[:n]))
}

func TestWriteSpillsToDiskPastThreshold(t *testing.T) {
	t.Parallel()

	b := New(t.TempDir(), 8)
	_, err := b.Write([]byte("this payload is longer than the threshold"))
	require.NoError(t, err)
	assert.True(t, b.spilled)

	content, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "this payload is longer than the threshold", string(content))
}

func TestSeekAndOverwrite(t *testing.T) {
	t.Parallel()

	b := New(t.TempDir(), 1024)
	_, err := b.Write([]byte("aaaaaaaaaa"))
	require.NoError(t, err)

	_, err = b.Seek(2, io.SeekStart)
	require.NoError(t, err)
	_, err = b.Write([]byte("BB"))
	require.NoError(t, err)

	content, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "aaBBaaaaaa", string(content))
}

func TestTruncateShrinksAndGrows(t *testing.T) {
	t.Parallel()

	b := New(t.TempDir(), 1024)
	_, err := b.Write([]byte("0123456789"))
	require.NoError(t, err)

	require.NoError(t, b.Truncate(4))
	content, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "0123", string(content))

	require.NoError(t, b.Truncate(6))
	content, err = b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{'0', '1', '2', '3', 0, 0}, content)
}

func TestReadReturnsEOFAtEnd(t *testing.T) {
	t.Parallel()

	b := New(t.TempDir(), 1024)
	_, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = b.Seek(0, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	_, err = b.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCloseRemovesSpilledFile(t *testing.T) {
	t.Parallel()

	b := New(t.TempDir(), 4)
	_, err := b.Write([]byte("longer than threshold"))
	require.NoError(t, err)
	require.True(t, b.spilled)

	name := b.file.Name()
	require.NoError(t, b.Close())
	_, statErr := os.Stat(name)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

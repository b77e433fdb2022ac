package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccasfs/ccasfs/chunkserver"
	"github.com/ccasfs/ccasfs/digest"
	"github.com/ccasfs/ccasfs/master"
)

func newTestClient(t *testing.T, disks []chunkserver.Server, algorithm master.Algorithm, chunksize int) *Client {
	t.Helper()
	m := master.New(master.Config{
		Disks:        disks,
		ManifestRoot: t.TempDir(),
		CatalogRoot:  t.TempDir(),
		IndexRoot:    t.TempDir(),
		TempRoot:     t.TempDir(),
		Chunksize:    chunksize,
		Algorithm:    algorithm,
	})
	return New(m)
}

func localDisks(t *testing.T, n int) []chunkserver.Server {
	t.Helper()
	disks := make([]chunkserver.Server, n)
	for i := range n {
		disks[i] = chunkserver.NewLocal(t.TempDir())
	}
	return disks
}

func chunkPath(root, dig string) string {
	segments := digest.Fanout(dig)
	parts := append(append([]string{root}, segments...), dig)
	return filepath.Join(parts...)
}

func TestWriteReadRoundTripMirror(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 3), master.Mirror, 4)
	content := []byte("a chunked payload spanning several small chunks")

	require.NoError(t, c.Write(ctx, "/a/b.txt", content))
	got, err := c.Read(ctx, "/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestWriteReadRoundTripStripe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 4), master.Stripe, 4)
	content := []byte("striped across several disks in round robin order")

	require.NoError(t, c.Write(ctx, "/striped", content))
	got, err := c.Read(ctx, "/striped")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestWriteEmptyContent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 2), master.Mirror, 4)
	require.NoError(t, c.Write(ctx, "/empty", nil))

	got, err := c.Read(ctx, "/empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteOverwriteReadsNewVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 2), master.Mirror, 8)
	require.NoError(t, c.Write(ctx, "/doc", []byte("first version")))
	require.NoError(t, c.Write(ctx, "/doc", []byte("second version, longer than the first")))

	got, err := c.Read(ctx, "/doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("second version, longer than the first"), got)
}

func TestWriteAllDisksDisabledFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	disks := []chunkserver.Server{chunkserver.NewLocal(""), chunkserver.NewLocal("")}
	c := newTestClient(t, disks, master.Mirror, 4)

	err := c.Write(ctx, "/doomed", []byte("never lands anywhere"))
	assert.ErrorIs(t, err, ErrChunkWriteFault)
	assert.False(t, c.Exists(ctx, "/doomed"))
}

func TestReadRecoversFromOneCorruptedMirrorReplica(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	disk0, disk1 := t.TempDir(), t.TempDir()
	disks := []chunkserver.Server{chunkserver.NewLocal(disk0), chunkserver.NewLocal(disk1)}
	c := newTestClient(t, disks, master.Mirror, 64)

	content := []byte("mirrored payload")
	require.NoError(t, c.Write(ctx, "/mirrored", content))

	digests, err := c.master.GetChunkDigests(ctx, "/mirrored")
	require.NoError(t, err)
	require.Len(t, digests, 1)

	require.NoError(t, os.Truncate(chunkPath(disk0, digests[0]), 0))

	got, err := c.Read(ctx, "/mirrored")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestReadFailsWhenEveryReplicaIsCorrupted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	disk0, disk1 := t.TempDir(), t.TempDir()
	disks := []chunkserver.Server{chunkserver.NewLocal(disk0), chunkserver.NewLocal(disk1)}
	c := newTestClient(t, disks, master.Mirror, 64)

	content := []byte("mirrored payload")
	require.NoError(t, c.Write(ctx, "/mirrored", content))

	digests, err := c.master.GetChunkDigests(ctx, "/mirrored")
	require.NoError(t, err)
	require.Len(t, digests, 1)

	require.NoError(t, os.Truncate(chunkPath(disk0, digests[0]), 0))
	require.NoError(t, os.Truncate(chunkPath(disk1, digests[0]), 0))

	_, err = c.Read(ctx, "/mirrored")
	assert.ErrorIs(t, err, ErrChunkVerifyFault)
}

func TestReadMissingPathFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 2), master.Mirror, 4)
	_, err := c.Read(ctx, "/never/written")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteAppendExtendsContent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 2), master.Mirror, 4)
	require.NoError(t, c.Write(ctx, "/log", []byte("line one;")))
	require.NoError(t, c.WriteAppend(ctx, "/log", []byte("line two;")))

	got, err := c.Read(ctx, "/log")
	require.NoError(t, err)
	assert.Equal(t, []byte("line one;line two;"), got)
}

func TestWriteAppendMissingPathFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 2), master.Mirror, 4)
	err := c.WriteAppend(ctx, "/no/such/file", []byte("orphan"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteThenReadFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 2), master.Mirror, 4)
	require.NoError(t, c.Write(ctx, "/gone", []byte("temporary")))

	tombstone, err := c.Delete(ctx, "/gone")
	require.NoError(t, err)
	assert.Contains(t, tombstone, "hidden/deleted/")

	assert.False(t, c.Exists(ctx, "/gone"))
	_, err = c.Read(ctx, "/gone")
	assert.ErrorIs(t, err, ErrNotFound)

	recovered, err := c.Read(ctx, tombstone)
	require.NoError(t, err)
	assert.Equal(t, []byte("temporary"), recovered)
}

func TestRenameMovesManifest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestClient(t, localDisks(t, 2), master.Mirror, 4)
	require.NoError(t, c.Write(ctx, "/old/name", []byte("content")))
	require.NoError(t, c.Rename(ctx, "/old/name", "/new/name"))

	assert.False(t, c.Exists(ctx, "/old/name"))
	got, err := c.Read(ctx, "/new/name")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got)
}

func TestSplit(t *testing.T) {
	t.Parallel()

	chunks := split([]byte("abcdefg"), 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []byte("abc"), chunks[0])
	assert.Equal(t, []byte("def"), chunks[1])
	assert.Equal(t, []byte("g"), chunks[2])

	assert.Empty(t, split(nil, 3))
	assert.Empty(t, split([]byte{}, 3))
}

func TestWriteChunksAbortsOnCancelledContext(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, localDisks(t, 2), master.Mirror, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	digests, err := c.writeChunks(ctx, []byte("content split across several chunks"))
	require.Error(t, err)
	assert.Nil(t, digests)
}

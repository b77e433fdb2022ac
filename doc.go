// Package ccasfs provides a chunking, content-addressable storage
// filesystem: files are split into fixed-size chunks named by the
// SHA-256 digest of their content, placed across a set of backing
// disks under [digest.Fanout] directories, and reassembled on read
// with cross-replica verification.
//
// [FS] is the entry point. It owns the [master.Master] (placement and
// metadata), the [client.Client] (chunking and I/O), and the namespace
// tree used for listing and stat. Individual files are accessed
// through [Handle], a buffered file-like object returned by Open.
//
// # Quick start
//
//	fs, err := ccasfs.New(ccasfs.Config{
//	    Disks:        []chunkserver.Server{chunkserver.NewLocal("/mnt/disk0")},
//	    ManifestRoot: "/var/ccasfs/manifests",
//	    CatalogRoot:  "/var/ccasfs/catalog",
//	    IndexRoot:    "/var/ccasfs/index",
//	    TempRoot:     "/var/ccasfs/tmp",
//	})
//	err = fs.SetContents(ctx, "/hello.txt", []byte("hello world"))
//	content, err := fs.GetContents(ctx, "/hello.txt")
package ccasfs

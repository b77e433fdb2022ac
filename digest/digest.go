// Package digest computes chunk content digests and derives the fan-out
// directory path a chunk is stored under.
//
// CCASFS identifies every chunk by the SHA-256 hex digest of its bytes.
// This package wraps github.com/opencontainers/go-digest for the hashing
// and validation machinery, while exposing plain lowercase-hex strings at
// its boundary — the wire format spec.md §6 requires, with no
// "sha256:" algorithm prefix.
package digest

import (
	"fmt"

	godigest "github.com/opencontainers/go-digest"
)

// Width is the number of hex characters in each fan-out segment.
const Width = 2

// Depth is the number of fan-out segments taken from a digest prefix.
const Depth = 4

// Len is the length, in hex characters, of a SHA-256 digest.
const Len = godigest.SHA256.Size() * 2

// Of returns the lowercase hex SHA-256 digest of data.
func Of(data []byte) string {
	return godigest.SHA256.FromBytes(data).Encoded()
}

// Valid reports whether s is a well-formed SHA-256 hex digest.
func Valid(s string) bool {
	if len(s) != Len {
		return false
	}
	return godigest.NewDigestFromEncoded(godigest.SHA256, s).Validate() == nil
}

// Fanout splits digest into Depth segments of Width hex characters each,
// taken from its prefix, for use as nested fan-out directories.
//
// Fanout panics if digest is shorter than Width*Depth characters; callers
// are expected to only fan out well-formed digests (see Valid).
func Fanout(digest string) []string {
	if len(digest) < Width*Depth {
		panic(fmt.Sprintf("digest: %q too short to fan out at width=%d depth=%d", digest, Width, Depth))
	}
	segments := make([]string, Depth)
	for i := range Depth {
		start := i * Width
		segments[i] = digest[start : start+Width]
	}
	return segments
}

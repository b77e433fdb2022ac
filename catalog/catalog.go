// Package catalog encodes and decodes the per-file torrent-style info
// record CCASFS stores at <catalog_root>/<path>.
//
// The record is an opaque FlatBuffers table, the same serialization
// approach the teacher blob library uses for its own archive index
// (see its core/internal/index package). It carries the total file
// length, the chunk (piece) length, and the concatenated raw SHA-256
// digests of every chunk in manifest order — enough to satisfy
// spec.md §6's requirement that the catalog be "decodable to recover
// at least info.length" plus the piece structure, without a reader
// having to re-parse the manifest file.
package catalog

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// pieceDigestSize is the byte length of one raw SHA-256 piece hash.
const pieceDigestSize = 32

// vtable field offsets, following the FlatBuffers convention of
// 4 + 2*fieldIndex bytes per field slot.
const (
	fieldLength      = 4
	fieldPieceLength = 6
	fieldPieceHashes = 8
)

// Info is a decoded catalog record.
type Info struct {
	// Length is the total file size in bytes.
	Length uint64
	// PieceLength is the configured chunk size used to produce this file.
	PieceLength uint64
	// PieceHashes is the concatenation of each chunk's raw 32-byte
	// SHA-256 digest, in manifest order.
	PieceHashes []byte
}

// ErrMalformed is returned when a catalog record cannot be parsed.
var ErrMalformed = errors.New("catalog: malformed record")

// Encode serialises info as a FlatBuffers-encoded catalog record.
func Encode(info Info) []byte {
	b := flatbuffers.NewBuilder(64 + len(info.PieceHashes))

	hashesOffset := b.CreateByteVector(info.PieceHashes)

	b.StartObject(3)
	b.PrependUint64Slot(0, info.Length, 0)
	b.PrependUint64Slot(1, info.PieceLength, 0)
	b.PrependUOffsetTSlot(2, hashesOffset, 0)
	root := b.EndObject()

	b.Finish(root)
	return b.FinishedBytes()
}

// Decode parses a FlatBuffers-encoded catalog record.
func Decode(data []byte) (info Info, err error) {
	if len(data) < 4 {
		return Info{}, fmt.Errorf("%w: record too short (%d bytes)", ErrMalformed, len(data))
	}
	defer func() {
		if r := recover(); r != nil {
			info = Info{}
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	n := flatbuffers.GetUOffsetT(data)
	tab := &flatbuffers.Table{Bytes: data, Pos: n}

	result := Info{}
	if o := tab.Offset(fieldLength); o != 0 {
		result.Length = tab.GetUint64(tab.Pos + o)
	}
	if o := tab.Offset(fieldPieceLength); o != 0 {
		result.PieceLength = tab.GetUint64(tab.Pos + o)
	}
	if o := tab.Offset(fieldPieceHashes); o != 0 {
		result.PieceHashes = append([]byte(nil), tab.ByteVector(tab.Pos+o)...)
	}
	return result, nil
}

// PieceCount returns the number of chunk digests recorded in info.
func (info Info) PieceCount() int {
	if len(info.PieceHashes) == 0 {
		return 0
	}
	return len(info.PieceHashes) / pieceDigestSize
}

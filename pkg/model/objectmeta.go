// Package model holds the plain data structures produced by the sidecar
// and topology parsers and consumed by the shard reader, erasure engine,
// and object decoder. Every value here is owned by the caller once
// returned — nothing in xlrecover retains a reference to it afterward.
package model

import (
	"github.com/google/uuid"
)

// VersionKind identifies which of the three shapes a sidecar version entry
// can take.
type VersionKind uint8

const (
	VersionUnknown VersionKind = iota
	VersionRegularObject
	VersionDeleteMarker
	VersionLegacy
)

func (k VersionKind) String() string {
	switch k {
	case VersionRegularObject:
		return "Object"
	case VersionDeleteMarker:
		return "DeleteMarker"
	case VersionLegacy:
		return "Legacy"
	default:
		return "Unknown"
	}
}

// EcAlgo identifies the erasure-coding algorithm a version was encoded
// with. xlrecover only implements Reed-Solomon; any other recognized value
// is rejected with xlerr.ErrUnsupportedEcAlgo at parse time.
type EcAlgo uint8

const (
	EcAlgoUnknown EcAlgo = iota
	EcAlgoReedSolomon
)

// ChecksumAlgo identifies the per-block bitrot checksum algorithm. Only
// HighwayHash-256 is implemented.
type ChecksumAlgo uint8

const (
	ChecksumUnknown ChecksumAlgo = iota
	ChecksumHighwayHash256
)

// PartMeta describes one part of a (possibly multipart) object.
type PartMeta struct {
	// Number is the part's 1-based position within the object.
	Number int32
	// Size is the on-disk (post-encoding) size of the part in bytes.
	Size int64
	// ActualSize is the part's logical size prior to any payload transform
	// (e.g. compression). xlrecover surfaces this but never applies the
	// inverse transform itself.
	ActualSize int64
	// ETag is the part's own ETag, when the sidecar recorded one.
	ETag string
}

// ObjectMeta is the normalized projection of a meta-sidecar's active
// version, plus the bucket/key identity the caller supplies (the sidecar
// itself never names its own bucket or key).
type ObjectMeta struct {
	Bucket string
	Key    string

	VersionKind VersionKind
	VersionID   uuid.UUID
	DataDir     uuid.UUID

	EcAlgo       EcAlgo
	DataShards   int
	ParityShards int
	BlockSize    int64
	ChecksumAlgo ChecksumAlgo
	// ErasureIndex is this disk's 1-based position in Distribution.
	ErasureIndex int
	// Distribution is a permutation of 1..DataShards+ParityShards; it maps
	// disk slot (0-based index into Distribution) to logical shard number
	// (1-based).
	Distribution []int

	Parts []PartMeta
	// Size is the object's total size in bytes, the sum of Parts[*].Size.
	Size int64

	ModTime int64 // nanoseconds since Unix epoch
	ETag    string
	ContentType string

	UserMeta   map[string]string
	SystemMeta map[string]string
}

// TotalShards returns DataShards + ParityShards.
func (m ObjectMeta) TotalShards() int {
	return m.DataShards + m.ParityShards
}

// ShardBlockSize returns ceil(BlockSize / DataShards), the per-block size
// of a single data (or parity) shard.
func (m ObjectMeta) ShardBlockSize() int64 {
	return CeilDiv(m.BlockSize, int64(m.DataShards))
}

// DataDirString renders DataDir in canonical dashed form, matching the
// subdirectory name MinIO uses on disk for this version's shard files.
func (m ObjectMeta) DataDirString() string {
	return m.DataDir.String()
}

// CeilDiv computes ceil(a / b) for positive b. Kept as a small named
// utility (rather than inlined at each call site) because the shard
// block-size math and the decoder's per-part block count both need exactly
// this rounding.
func CeilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

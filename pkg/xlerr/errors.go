// Package xlerr collects the error taxonomy shared by every component of
// xlrecover. Each variant named in the design is either a sentinel error
// (compare with errors.Is) or a small struct error carrying the fields the
// caller needs (compare with errors.As).
package xlerr

import (
	"errors"
	"fmt"
)

// Parse errors — the value-tree codec and the sidecar/topology parsers built
// on top of it.
var (
	ErrTruncated               = errors.New("xlerr: truncated value")
	ErrBadTag                  = errors.New("xlerr: unrecognized tag byte")
	ErrDepthExceeded           = errors.New("xlerr: recursion depth exceeded")
	ErrUtf8                    = errors.New("xlerr: invalid utf-8 in text value")
	ErrCorruptSidecar          = errors.New("xlerr: sidecar crc32c mismatch")
	ErrUnsupportedSidecarVersion = errors.New("xlerr: unsupported sidecar version")
	ErrLegacyOnly              = errors.New("xlerr: sidecar contains only legacy versions")
	ErrInlineDataUnsupported   = errors.New("xlerr: inline-data objects are not supported")
	ErrUnsupportedEcAlgo       = errors.New("xlerr: unsupported erasure algorithm")
	ErrUnsupportedChecksum     = errors.New("xlerr: unsupported checksum algorithm")
	ErrUnsupportedTopologyVersion = errors.New("xlerr: unsupported topology-doc version")
)

// Reconstruction and arithmetic errors.
var (
	ErrSingularMatrix = errors.New("xlerr: singular generator matrix")
	ErrSizeOverflow   = errors.New("xlerr: integer overflow in size arithmetic")
)

// MissingFieldError reports a required sidecar or topology-doc field that
// was never seen while walking the value tree.
type MissingFieldError struct {
	Name string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("xlerr: missing required field %q", e.Name)
}

// BitrotError reports a block whose stored HighwayHash-256 checksum did not
// match the block bytes actually read from disk.
type BitrotError struct {
	DiskIndex  int
	BlockIndex int
}

func (e *BitrotError) Error() string {
	return fmt.Sprintf("xlerr: bitrot detected on disk %d block %d", e.DiskIndex, e.BlockIndex)
}

// InsufficientShardsError reports that fewer than the required number of
// data shards were available to reconstruct a block.
type InsufficientShardsError struct {
	Part     int
	Block    int
	Present  int
	Required int
}

func (e *InsufficientShardsError) Error() string {
	return fmt.Sprintf(
		"xlerr: insufficient shards for part %d block %d: have %d, need %d",
		e.Part, e.Block, e.Present, e.Required,
	)
}

// ShardSourceError wraps a failure surfaced by a ShardSource implementation.
// It is never constructed for an Absent result — absence is not an error.
type ShardSourceError struct {
	DiskIndex int
	Cause     error
}

func (e *ShardSourceError) Error() string {
	return fmt.Sprintf("xlerr: shard source failed for disk %d: %v", e.DiskIndex, e.Cause)
}

func (e *ShardSourceError) Unwrap() error {
	return e.Cause
}

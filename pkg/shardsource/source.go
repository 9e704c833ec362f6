// Package shardsource defines the single-operation contract the decoder
// uses to fetch raw shard-file bytes, plus the stock filesystem
// implementation of that contract.
package shardsource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cvhariharan/xlrecover/pkg/xlerr"
)

// Kind classifies the outcome of a single shard fetch and selects which
// field of Result is meaningful: Bytes for KindPresent, Err for KindFail,
// neither for KindAbsent.
type Kind uint8

const (
	// KindPresent means Bytes holds the shard file's full contents.
	KindPresent Kind = iota
	// KindAbsent means the shard does not exist on this disk. This is a
	// normal, expected outcome that drives the reconstruction path — not
	// an error.
	KindAbsent
	// KindFail means the source could not determine presence or absence;
	// Err holds the cause.
	KindFail
)

// Result is returned by Source.ReadShard.
type Result struct {
	Kind  Kind
	Bytes []byte
	Err   error
}

// Present wraps shard bytes into a present Result.
func Present(b []byte) Result { return Result{Kind: KindPresent, Bytes: b} }

// Absent returns the absent Result.
func Absent() Result { return Result{Kind: KindAbsent} }

// Fail wraps a cause into a failed Result.
func Fail(diskIndex int, cause error) Result {
	return Result{Kind: KindFail, Err: &xlerr.ShardSourceError{DiskIndex: diskIndex, Cause: cause}}
}

// Source is the contract every shard supplier implements: a single
// operation that fetches one disk's shard file for one part of one
// object version. Implementations may be called concurrently across
// disk indices; a single Source value must therefore be safe for
// concurrent use if the caller parallelizes reads across disk slots.
type Source interface {
	ReadShard(diskIndex int, bucket, key, dataDir string, partNum int32) Result
}

// FSSource is the stock filesystem Source: an ordered list of disk
// roots, one per disk index, each laid out as
// <root>/<bucket>/<key>/<dataDir>/part.<partNum>.
type FSSource struct {
	Roots []string
}

// New returns an FSSource over the given ordered disk roots.
func New(roots []string) *FSSource {
	return &FSSource{Roots: roots}
}

// ReadShard implements Source. A missing file maps to Absent; any other
// stat or read failure maps to Fail.
func (s *FSSource) ReadShard(diskIndex int, bucket, key, dataDir string, partNum int32) Result {
	if diskIndex < 0 || diskIndex >= len(s.Roots) {
		return Fail(diskIndex, fmt.Errorf("shardsource: disk index %d out of range [0,%d)", diskIndex, len(s.Roots)))
	}

	path := filepath.Join(s.Roots[diskIndex], bucket, key, dataDir, fmt.Sprintf("part.%d", partNum))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Absent()
		}
		return Fail(diskIndex, err)
	}
	return Present(data)
}

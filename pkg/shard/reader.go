// Package shard reads the on-disk shard-file framing — a repeated
// (32-byte HighwayHash-256 checksum || block-bytes) sequence — and
// exposes it to the erasure engine as a sequence of verified blocks.
package shard

import (
	"fmt"

	"github.com/cvhariharan/xlrecover/pkg/bitrot"
	"github.com/cvhariharan/xlrecover/pkg/shardsource"
	"github.com/cvhariharan/xlrecover/pkg/xlerr"
)

// ReadPartShard fetches one disk's shard file for one part, delegating to
// source. A Result with Kind == KindAbsent is returned unchanged — a
// missing shard is a normal, recoverable event, not an error.
func ReadPartShard(source shardsource.Source, diskIndex int, bucket, key, dataDir string, partNum int32) shardsource.Result {
	return source.ReadShard(diskIndex, bucket, key, dataDir, partNum)
}

// BlockIterator walks a shard file's frames in order, verifying each
// block's HighwayHash-256 checksum unless verification is disabled.
type BlockIterator struct {
	data           []byte
	shardBlockSize int64
	pos            int
	blockIndex     int
	verify         bool
	diskIndex      int
	v              bitrot.Verifier
}

// NewBlockIterator returns an iterator over shardBytes, whose frames are
// each (32 bytes of checksum || up to shardBlockSize bytes of payload),
// with the final frame possibly short. diskIndex is carried only to
// annotate BitrotError should verification fail.
func NewBlockIterator(shardBytes []byte, shardBlockSize int64, verify bool, diskIndex int) *BlockIterator {
	return &BlockIterator{
		data:           shardBytes,
		shardBlockSize: shardBlockSize,
		verify:         verify,
		diskIndex:      diskIndex,
		v:              bitrot.New(),
	}
}

// Next returns the next verified block, or (nil, nil, false) once the
// shard file is exhausted. A non-nil error indicates either a framing
// defect or — when verification is enabled — a bitrot mismatch.
func (it *BlockIterator) Next() (block []byte, err error, ok bool) {
	if it.pos >= len(it.data) {
		return nil, nil, false
	}

	remaining := len(it.data) - it.pos
	if remaining < bitrot.Size+1 {
		return nil, fmt.Errorf("shard: trailing %d bytes too short for a frame: %w", remaining, xlerr.ErrTruncated), true
	}

	checksum := it.data[it.pos : it.pos+bitrot.Size]
	payloadStart := it.pos + bitrot.Size
	payloadEnd := payloadStart + int(it.shardBlockSize)
	if payloadEnd > len(it.data) {
		payloadEnd = len(it.data) // final frame may be short
	}
	payload := it.data[payloadStart:payloadEnd]

	if it.verify && !it.v.Verify(checksum, payload) {
		return nil, &xlerr.BitrotError{DiskIndex: it.diskIndex, BlockIndex: it.blockIndex}, true
	}

	it.pos = payloadEnd
	it.blockIndex++
	return payload, nil, true
}

// IterBlocks drains shardBytes into an in-memory slice of verified
// blocks. Provided alongside the lazy BlockIterator for callers (and
// tests) that want the whole sequence at once; the decoder itself uses
// BlockIterator directly to keep peak memory flat.
func IterBlocks(shardBytes []byte, shardBlockSize int64, verify bool, diskIndex int) ([][]byte, error) {
	it := NewBlockIterator(shardBytes, shardBlockSize, verify, diskIndex)
	var blocks [][]byte
	for {
		b, err, ok := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return blocks, nil
		}
		blocks = append(blocks, b)
	}
}

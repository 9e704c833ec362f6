// Package decode orchestrates the sidecar-described object layout, a
// shard-source, and the erasure engine into the one operation callers
// actually want: turn a set of on-disk shards back into the original
// object bytes.
package decode

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/cvhariharan/xlrecover/pkg/erasure"
	"github.com/cvhariharan/xlrecover/pkg/logging"
	"github.com/cvhariharan/xlrecover/pkg/model"
	"github.com/cvhariharan/xlrecover/pkg/shard"
	"github.com/cvhariharan/xlrecover/pkg/shardsource"
	"github.com/cvhariharan/xlrecover/pkg/xlerr"
)

// Options controls one decode. The zero value is the library's own
// default behavior: verification on, no skipped disks, a quiet default
// logger.
type Options struct {
	// SkipDisks forces the named disk indices to be treated as absent,
	// regardless of what the shard-source would otherwise return. Useful
	// for forcing a reconstruction path in diagnostics or tests.
	SkipDisks []int
	// DisableVerify turns off per-block HighwayHash-256 checking. Never
	// used by the default decode path; reserved for diagnostic tooling
	// that wants raw bytes even from a block it knows is suspect.
	DisableVerify bool
	// Logger receives progress and warning messages. Defaults to
	// logging.Default() when nil.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.Default()
}

func (o Options) skipSet() map[int]bool {
	if len(o.SkipDisks) == 0 {
		return nil
	}
	set := make(map[int]bool, len(o.SkipDisks))
	for _, d := range o.SkipDisks {
		set[d] = true
	}
	return set
}

// DecodeObject reconstructs the full object byte stream described by
// meta, reading shards from source. The returned slice is always exactly
// meta.Size bytes for a RegularObject, or empty for a DeleteMarker.
func DecodeObject(source shardsource.Source, meta model.ObjectMeta, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := DecodeObjectTo(&buf, source, meta, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeObjectTo streams the decoded object to w, one block at a time,
// rather than assembling the whole object. Each part's shard files are
// read whole from source and held in memory while that part is decoded,
// so peak memory is bounded by one part's shard files, not by a single
// block's shards.
func DecodeObjectTo(w io.Writer, source shardsource.Source, meta model.ObjectMeta, opts Options) error {
	switch meta.VersionKind {
	case model.VersionDeleteMarker:
		return nil
	case model.VersionLegacy:
		return fmt.Errorf("decode: %w", xlerr.ErrLegacyOnly)
	case model.VersionRegularObject:
		// fall through
	default:
		return fmt.Errorf("decode: object-meta has no decodable version")
	}

	if err := validateMeta(meta); err != nil {
		return err
	}

	log := opts.logger()
	skip := opts.skipSet()

	shardToDisk := buildShardToDisk(meta)

	parts := append([]model.PartMeta(nil), meta.Parts...)
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })

	var totalWritten int64
	for _, part := range parts {
		n, err := decodePart(w, source, meta, part, shardToDisk, skip, opts.DisableVerify, log)
		if err != nil {
			return fmt.Errorf("decode: part %d: %w", part.Number, err)
		}
		var overflowed bool
		totalWritten, overflowed = checkedAdd(totalWritten, n)
		if overflowed {
			return fmt.Errorf("decode: %w", xlerr.ErrSizeOverflow)
		}
	}

	if totalWritten != meta.Size {
		return fmt.Errorf("decode: wrote %d bytes, object-meta declares %d", totalWritten, meta.Size)
	}
	return nil
}

func validateMeta(meta model.ObjectMeta) error {
	total := meta.TotalShards()
	if total == 0 || meta.DataShards <= 0 {
		return fmt.Errorf("decode: object-meta has no usable erasure layout")
	}
	if len(meta.Distribution) != total {
		return fmt.Errorf("decode: distribution length %d != data+parity %d", len(meta.Distribution), total)
	}
	seen := make([]bool, total+1)
	for _, v := range meta.Distribution {
		if v < 1 || v > total || seen[v] {
			return fmt.Errorf("decode: distribution is not a permutation of 1..%d", total)
		}
		seen[v] = true
	}
	return nil
}

// buildShardToDisk inverts meta.Distribution: distribution[diskSlot] is
// the 1-based logical shard number held by that disk slot, so the
// inverse maps a 0-based logical shard index to its disk slot.
func buildShardToDisk(meta model.ObjectMeta) []int {
	total := meta.TotalShards()
	out := make([]int, total)
	for i := range out {
		out[i] = -1
	}
	for diskSlot, erasureIdx := range meta.Distribution {
		shardIdx := erasureIdx - 1
		if shardIdx >= 0 && shardIdx < total {
			out[shardIdx] = diskSlot
		}
	}
	return out
}

func decodePart(
	w io.Writer,
	source shardsource.Source,
	meta model.ObjectMeta,
	part model.PartMeta,
	shardToDisk []int,
	skip map[int]bool,
	disableVerify bool,
	log *slog.Logger,
) (int64, error) {
	dataDir := meta.DataDirString()
	shardBlockSize := meta.ShardBlockSize()
	total := meta.TotalShards()

	numBlocks := model.CeilDiv(part.Size, meta.BlockSize)
	if numBlocks == 0 {
		return 0, nil
	}

	if product, overflowed := checkedMul(numBlocks, shardBlockSize); overflowed || product < 0 {
		return 0, fmt.Errorf("%w", xlerr.ErrSizeOverflow)
	}

	// Fetch the D logical data-shard files first — the common case where
	// every disk is healthy never needs to touch parity at all.
	dataFiles := make([][]byte, meta.DataShards)
	dataPresent := make([]bool, meta.DataShards)
	allDataPresent := true
	for shardIdx := 0; shardIdx < meta.DataShards; shardIdx++ {
		data, present, err := fetchShardFile(source, shardToDisk, skip, shardIdx, meta.Bucket, meta.Key, dataDir, part.Number)
		if err != nil {
			return 0, err
		}
		dataFiles[shardIdx] = data
		dataPresent[shardIdx] = present
		if !present {
			allDataPresent = false
		}
	}

	files := make([][]byte, total)
	present := make([]bool, total)
	copy(files[:meta.DataShards], dataFiles)
	copy(present[:meta.DataShards], dataPresent)

	if !allDataPresent {
		log.Debug("fetching parity shards for reconstruction", "part", part.Number, "data_shards", meta.DataShards)
		for shardIdx := meta.DataShards; shardIdx < total; shardIdx++ {
			data, ok, err := fetchShardFile(source, shardToDisk, skip, shardIdx, meta.Bucket, meta.Key, dataDir, part.Number)
			if err != nil {
				return 0, err
			}
			files[shardIdx] = data
			present[shardIdx] = ok
		}
	}

	iters := make([]*shard.BlockIterator, total)
	for i := 0; i < total; i++ {
		if present[i] {
			iters[i] = shard.NewBlockIterator(files[i], shardBlockSize, !disableVerify, shardToDisk[i])
		}
	}

	var engineFor *erasure.Engine
	if !allDataPresent {
		var err error
		engineFor, err = erasure.New(meta.DataShards, meta.ParityShards)
		if err != nil {
			return 0, err
		}
	}

	var written int64
	for b := int64(0); b < numBlocks; b++ {
		blockBytes, err := decodeOneBlock(iters, present, engineFor, meta.DataShards, shardBlockSize, int(part.Number), int(b), allDataPresent)
		if err != nil {
			return written, err
		}

		contribution := meta.BlockSize
		if b == numBlocks-1 {
			contribution = part.Size - b*meta.BlockSize
		}
		if contribution > int64(len(blockBytes)) {
			contribution = int64(len(blockBytes))
		}
		if contribution < 0 {
			contribution = 0
		}

		if _, err := w.Write(blockBytes[:contribution]); err != nil {
			return written, fmt.Errorf("decode: write block %d: %w", b, err)
		}
		written += contribution
	}

	return written, nil
}

func decodeOneBlock(
	iters []*shard.BlockIterator,
	present []bool,
	engine *erasure.Engine,
	dataShards int,
	shardBlockSize int64,
	part, block int,
	allDataPresent bool,
) ([]byte, error) {
	if allDataPresent {
		var out []byte
		for i := 0; i < dataShards; i++ {
			b, err, ok := iters[i].Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("decode: shard %d exhausted before block %d", i, block)
			}
			out = append(out, b...)
		}
		return out, nil
	}

	blocks := make([][]byte, len(iters))
	for i, it := range iters {
		if it == nil || !present[i] {
			continue
		}
		b, err, ok := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		// A shard file's final block may be shorter than shardBlockSize;
		// the erasure math needs every present shard at the same length.
		blocks[i] = padToLen(b, int(shardBlockSize))
	}

	dataOut, err := engine.ReconstructData(blocks, part, block)
	if err != nil {
		return nil, err
	}

	var out []byte
	for _, b := range dataOut {
		out = append(out, b...)
	}
	return out, nil
}

func padToLen(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func fetchShardFile(
	source shardsource.Source,
	shardToDisk []int,
	skip map[int]bool,
	shardIdx int,
	bucket, key, dataDir string,
	partNum int32,
) ([]byte, bool, error) {
	diskSlot := shardToDisk[shardIdx]
	if diskSlot < 0 {
		return nil, false, nil
	}
	if skip[diskSlot] {
		return nil, false, nil
	}

	res := shard.ReadPartShard(source, diskSlot, bucket, key, dataDir, partNum)
	switch res.Kind {
	case shardsource.KindPresent:
		return res.Bytes, true, nil
	case shardsource.KindAbsent:
		return nil, false, nil
	default:
		return nil, false, res.Err
	}
}

func checkedAdd(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, true
	}
	return a + b, false
}

func checkedMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	if a > math.MaxInt64/b {
		return 0, true
	}
	return a * b, false
}

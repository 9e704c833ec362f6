// Package erasure wraps Reed-Solomon over GF(2^8) for the decode path:
// given a set of present, bitrot-verified shard blocks, reconstruct the
// object's original data shards.
package erasure

import (
	"fmt"

	rs "github.com/klauspost/reedsolomon"

	"github.com/cvhariharan/xlrecover/pkg/model"
	"github.com/cvhariharan/xlrecover/pkg/xlerr"
)

// Engine reconstructs data shards for one fixed (dataShards, parityShards)
// layout. It is safe for concurrent use — klauspost/reedsolomon encoders
// hold no mutable state across calls.
type Engine struct {
	data    int
	parity  int
	encoder rs.Encoder
}

// New builds an Engine for the given data/parity shard counts.
func New(dataShards, parityShards int) (*Engine, error) {
	enc, err := rs.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("erasure: new encoder: %w", err)
	}
	return &Engine{data: dataShards, parity: parityShards, encoder: enc}, nil
}

// DataShardLayout returns ceil(blockSize / dataShards), the per-block size
// of a single shard.
func DataShardLayout(blockSize int64, dataShards int) int64 {
	return model.CeilDiv(blockSize, int64(dataShards))
}

// ReconstructData recovers the Engine's D data shards from present, a
// slice of length D+P where a nil entry means that logical shard index
// was absent. It requires at least D non-nil entries, else returns
// InsufficientShardsError.
//
// Determinism: when more than D shards are present, only the D
// lowest-indexed ones are used — present entries at higher indices are
// cleared before reconstruction, so the result depends only on the set
// of present indices and their bytes, never on incidental extras.
func (e *Engine) ReconstructData(present [][]byte, part, block int) ([][]byte, error) {
	total := e.data + e.parity
	if len(present) != total {
		return nil, fmt.Errorf("erasure: present has %d shards, want %d", len(present), total)
	}

	presentCount := 0
	for _, s := range present {
		if s != nil {
			presentCount++
		}
	}
	if presentCount < e.data {
		return nil, &xlerr.InsufficientShardsError{Part: part, Block: block, Present: presentCount, Required: e.data}
	}

	shards := make([][]byte, total)
	selected := 0
	for i, s := range present {
		if s == nil {
			continue
		}
		if selected < e.data {
			shards[i] = s
			selected++
		}
		// Indices beyond the first D present ones are left nil: excess
		// present shards never participate, which is what makes the
		// reconstructed result independent of which extra shards a
		// caller happened to have on hand.
	}

	if err := e.encoder.ReconstructData(shards); err != nil {
		if err == rs.ErrTooFewShards {
			return nil, &xlerr.InsufficientShardsError{Part: part, Block: block, Present: presentCount, Required: e.data}
		}
		return nil, fmt.Errorf("erasure: reconstruct data: %w", err)
	}

	return shards[:e.data], nil
}

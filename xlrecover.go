// Package xlrecover is a read-side library for MinIO's on-disk object
// storage format. Given raw bytes pulled directly off a MinIO
// deployment's data disks, it parses the per-object metadata sidecar and
// the cluster topology descriptor, verifies shard integrity, and
// reconstructs the original object bytes via Reed-Solomon — all without
// a running MinIO server.
//
// The package is synchronous and holds no process-wide state: every
// call is a pure function of its inputs plus whatever the caller's
// ShardSource returns. Parsing the same bytes twice yields identical
// results, and concurrent decodes are safe as long as the ShardSource
// itself tolerates concurrent calls.
package xlrecover

import (
	"io"

	"github.com/cvhariharan/xlrecover/pkg/decode"
	"github.com/cvhariharan/xlrecover/pkg/model"
	"github.com/cvhariharan/xlrecover/pkg/shard"
	"github.com/cvhariharan/xlrecover/pkg/shardsource"
	"github.com/cvhariharan/xlrecover/pkg/sidecar"
	"github.com/cvhariharan/xlrecover/pkg/topology"
)

// Re-exported types, so a caller only needs to import this one package
// for the common path.
type (
	ObjectMeta = model.ObjectMeta
	PartMeta   = model.PartMeta
	Topology   = model.Topology
	ClusterConfig = model.ClusterConfig
	DiskTopology  = model.DiskTopology
	DiskInfo      = model.DiskInfo
	VersionKind   = model.VersionKind

	ShardSource = shardsource.Source
	Options     = decode.Options
)

const (
	VersionRegularObject = model.VersionRegularObject
	VersionDeleteMarker  = model.VersionDeleteMarker
	VersionLegacy        = model.VersionLegacy
)

// ParseSidecar decodes raw meta-sidecar bytes into an ObjectMeta. bucket
// and key are supplied by the caller — the sidecar never names its own
// bucket or object key.
func ParseSidecar(data []byte, bucket, key string) (ObjectMeta, error) {
	return sidecar.Parse(data, bucket, key)
}

// ParseTopology decodes a single disk's topology-doc.
func ParseTopology(data []byte) (Topology, error) {
	return topology.Parse(data)
}

// BuildClusterConfig cross-references multiple disks' topology-docs into
// a single multi-pool cluster view.
func BuildClusterConfig(disks []DiskTopology) (ClusterConfig, error) {
	return topology.BuildClusterConfig(disks)
}

// NewFilesystemSource returns the stock filesystem ShardSource, reading
// shard files from an ordered list of disk roots.
func NewFilesystemSource(roots []string) ShardSource {
	return shardsource.New(roots)
}

// ReadShardBlock slices one shard file into its block at blockIndex,
// verifying its HighwayHash-256 checksum when verify is true. diskIndex
// is used only to annotate a BitrotError should verification fail.
func ReadShardBlock(shardBytes []byte, blockIndex int, shardBlockSize int64, verify bool, diskIndex int) ([]byte, error) {
	it := shard.NewBlockIterator(shardBytes, shardBlockSize, verify, diskIndex)
	for i := 0; ; i++ {
		b, err, ok := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if i == blockIndex {
			return b, nil
		}
	}
}

// DecodeObject reconstructs the full object byte stream described by
// meta, reading shards from source.
func DecodeObject(source ShardSource, meta ObjectMeta, opts Options) ([]byte, error) {
	return decode.DecodeObject(source, meta, opts)
}

// DecodeObjectTo streams the decoded object to w one block at a time.
// Each part's shard files are held in memory while that part is decoded,
// so peak memory is bounded by one part's shard files.
func DecodeObjectTo(w io.Writer, source ShardSource, meta ObjectMeta, opts Options) error {
	return decode.DecodeObjectTo(w, source, meta, opts)
}

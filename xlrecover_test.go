package xlrecover

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	rs "github.com/klauspost/reedsolomon"
	"github.com/stretchr/testify/require"

	"github.com/cvhariharan/xlrecover/pkg/bitrot"
	"github.com/cvhariharan/xlrecover/pkg/model"
)

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	u, err := uuid.Parse(s)
	require.NoError(t, err)
	return u
}

// writeObjectFixture lays out a single-part object across dataShards+parityShards
// disk roots, matching the stock filesystem shard-source's on-disk layout.
func writeObjectFixture(
	t *testing.T,
	roots []string,
	dataShards, parityShards int,
	blockSize int64,
	bucket, key, dataDir string,
	partNum int32,
	objectData []byte,
) []int {
	t.Helper()
	total := dataShards + parityShards
	distribution := make([]int, total)
	for i := range distribution {
		distribution[i] = i + 1 // identity distribution
	}

	shardBlockSize := model.CeilDiv(blockSize, int64(dataShards))
	numBlocks := model.CeilDiv(int64(len(objectData)), blockSize)

	enc, err := rs.New(dataShards, parityShards)
	require.NoError(t, err)

	perDiskFrames := make([][]byte, total)
	v := bitrot.New()

	for b := int64(0); b < numBlocks; b++ {
		start := b * blockSize
		end := start + blockSize
		if end > int64(len(objectData)) {
			end = int64(len(objectData))
		}
		blockPayload := make([]byte, blockSize)
		copy(blockPayload, objectData[start:end])

		shards, err := enc.Split(blockPayload)
		require.NoError(t, err)
		require.NoError(t, enc.Encode(shards))

		for logicalIdx := 0; logicalIdx < total; logicalIdx++ {
			frame := shards[logicalIdx]
			require.LessOrEqual(t, len(frame), int(shardBlockSize))
			digest := v.Digest(frame)
			perDiskFrames[logicalIdx] = append(perDiskFrames[logicalIdx], digest...)
			perDiskFrames[logicalIdx] = append(perDiskFrames[logicalIdx], frame...)
		}
	}

	for diskSlot, frames := range perDiskFrames {
		dir := filepath.Join(roots[diskSlot], bucket, key, dataDir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		path := filepath.Join(dir, "part."+strconv.Itoa(int(partNum)))
		require.NoError(t, os.WriteFile(path, frames, 0o644))
	}

	return distribution
}

func TestDecodeObjectEndToEndViaFilesystemSource(t *testing.T) {
	const dataShards, parityShards = 4, 2
	const blockSize = int64(16)
	objectData := []byte("the quick brown fox jumps over the lazy dog!!!")

	roots := make([]string, dataShards+parityShards)
	for i := range roots {
		roots[i] = t.TempDir()
	}

	dataDir := "d1a9c7e0-0000-4000-8000-000000000001"
	distribution := writeObjectFixture(t, roots, dataShards, parityShards, blockSize, "mybucket", "mykey", dataDir, 1, objectData)

	meta := ObjectMeta{
		Bucket:       "mybucket",
		Key:          "mykey",
		VersionKind:  VersionRegularObject,
		DataDir:      mustParseUUID(t, dataDir),
		DataShards:   dataShards,
		ParityShards: parityShards,
		BlockSize:    blockSize,
		Distribution: distribution,
		Parts: []PartMeta{
			{Number: 1, Size: int64(len(objectData))},
		},
		Size: int64(len(objectData)),
	}

	src := NewFilesystemSource(roots)

	got, err := DecodeObject(src, meta, Options{})
	require.NoError(t, err)
	require.Equal(t, objectData, got)
}

func TestDecodeObjectEndToEndMissingDisk(t *testing.T) {
	const dataShards, parityShards = 4, 2
	const blockSize = int64(16)
	objectData := []byte("0123456789abcdef0123456789abcdef")

	roots := make([]string, dataShards+parityShards)
	for i := range roots {
		roots[i] = t.TempDir()
	}

	dataDir := "d1a9c7e0-0000-4000-8000-000000000002"
	distribution := writeObjectFixture(t, roots, dataShards, parityShards, blockSize, "b", "k", dataDir, 1, objectData)

	meta := ObjectMeta{
		Bucket:       "b",
		Key:          "k",
		VersionKind:  VersionRegularObject,
		DataDir:      mustParseUUID(t, dataDir),
		DataShards:   dataShards,
		ParityShards: parityShards,
		BlockSize:    blockSize,
		Distribution: distribution,
		Parts: []PartMeta{
			{Number: 1, Size: int64(len(objectData))},
		},
		Size: int64(len(objectData)),
	}

	src := NewFilesystemSource(roots)

	got, err := DecodeObject(src, meta, Options{SkipDisks: []int{0}})
	require.NoError(t, err)
	require.Equal(t, objectData, got)
}

func TestReadShardBlockVerifiesChecksum(t *testing.T) {
	v := bitrot.New()
	payload := []byte("abcd")
	digest := v.Digest(payload)
	shardBytes := append(append([]byte{}, digest...), payload...)

	block, err := ReadShardBlock(shardBytes, 0, int64(len(payload)), true, 0)
	require.NoError(t, err)
	require.Equal(t, payload, block)

	shardBytes[len(digest)] ^= 0xFF
	_, err = ReadShardBlock(shardBytes, 0, int64(len(payload)), true, 0)
	require.Error(t, err)
}

func TestParseTopologyAndBuildClusterConfig(t *testing.T) {
	doc := []byte(`{
		"version": "1",
		"format": "xl",
		"id": "7b1126e4-0000-4000-8000-000000000001",
		"xl": {
			"version": "3",
			"this": "7b1126e4-0000-4000-8000-000000000010",
			"sets": [["7b1126e4-0000-4000-8000-000000000010", "7b1126e4-0000-4000-8000-000000000011"]]
		}
	}`)

	topo, err := ParseTopology(doc)
	require.NoError(t, err)
	require.Len(t, topo.Sets, 1)

	cfg, err := BuildClusterConfig([]DiskTopology{{Doc: topo, DeviceIndex: 0}})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.TotalSets())
}

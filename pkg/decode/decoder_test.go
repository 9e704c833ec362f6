package decode

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
	"github.com/cvhariharan/xlrecover/pkg/shardsource"
	"github.com/cvhariharan/xlrecover/pkg/xlerr"
)

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	u, err := uuid.Parse(s)
	require.NoError(t, err)
	return u
}

// writePartFixture encodes partData into per-disk shard files and writes
// them under roots[diskSlot]/bucket/key/dataDir/part.<partNum>, matching
// the stock filesystem shard-source's layout.
func writePartFixture(
	t *testing.T,
	roots []string,
	dataShards, parityShards int,
	blockSize int64,
	distribution []int,
	bucket, key, dataDir string,
	partNum int32,
	partData []byte,
) {
	t.Helper()
	total := dataShards + parityShards
	shardBlockSize := model.CeilDiv(blockSize, int64(dataShards))
	numBlocks := model.CeilDiv(int64(len(partData)), blockSize)

	enc, err := rs.New(dataShards, parityShards)
	require.NoError(t, err)

	perDiskFrames := make([][]byte, total)
	v := bitrot.New()

	for b := int64(0); b < numBlocks; b++ {
		start := b * blockSize
		end := start + blockSize
		if end > int64(len(partData)) {
			end = int64(len(partData))
		}
		blockPayload := make([]byte, blockSize)
		copy(blockPayload, partData[start:end])

		shards, err := enc.Split(blockPayload)
		require.NoError(t, err)
		require.NoError(t, enc.Encode(shards))

		for logicalIdx := 0; logicalIdx < total; logicalIdx++ {
			diskSlot := -1
			for d, erasureIdx := range distribution {
				if erasureIdx-1 == logicalIdx {
					diskSlot = d
					break
				}
			}
			require.GreaterOrEqual(t, diskSlot, 0)

			frame := shards[logicalIdx]
			require.LessOrEqual(t, len(frame), int(shardBlockSize))
			digest := v.Digest(frame)
			perDiskFrames[diskSlot] = append(perDiskFrames[diskSlot], digest...)
			perDiskFrames[diskSlot] = append(perDiskFrames[diskSlot], frame...)
		}
	}

	for diskSlot, frames := range perDiskFrames {
		dir := filepath.Join(roots[diskSlot], bucket, key, dataDir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		path := filepath.Join(dir, "part."+strconv.Itoa(int(partNum)))
		require.NoError(t, os.WriteFile(path, frames, 0o644))
	}
}

// memSource is an in-memory shardsource.Source for tests, keyed by disk
// index. A disk index with no entry in files is Absent; one with an entry
// in fail is Fail.
type memSource struct {
	files map[int][]byte
	fail  map[int]error
}

func (m *memSource) ReadShard(diskIndex int, bucket, key, dataDir string, partNum int32) shardsource.Result {
	if err, ok := m.fail[diskIndex]; ok {
		return shardsource.Fail(diskIndex, err)
	}
	data, ok := m.files[diskIndex]
	if !ok {
		return shardsource.Absent()
	}
	return shardsource.Present(data)
}

// buildFixture encodes objectData with the given layout into per-disk
// shard files, framed with bitrot checksums, ready to serve from a
// memSource. distribution[diskSlot] = 1-based logical shard number.
func buildFixture(t *testing.T, dataShards, parityShards int, blockSize int64, objectData []byte, distribution []int) (model.ObjectMeta, *memSource) {
	t.Helper()
	total := dataShards + parityShards
	shardBlockSize := model.CeilDiv(blockSize, int64(dataShards))

	enc, err := rs.New(dataShards, parityShards)
	require.NoError(t, err)

	numBlocks := model.CeilDiv(int64(len(objectData)), blockSize)

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
			diskSlot := -1
			for d, erasureIdx := range distribution {
				if erasureIdx-1 == logicalIdx {
					diskSlot = d
					break
				}
			}
			require.GreaterOrEqual(t, diskSlot, 0)

			frame := shards[logicalIdx]
			require.LessOrEqual(t, len(frame), int(shardBlockSize))
			digest := v.Digest(frame)
			perDiskFrames[diskSlot] = append(perDiskFrames[diskSlot], digest...)
			perDiskFrames[diskSlot] = append(perDiskFrames[diskSlot], frame...)
		}
	}

	files := make(map[int][]byte, total)
	for i, f := range perDiskFrames {
		files[i] = f
	}

	meta := model.ObjectMeta{
		Bucket:       "bucket",
		Key:          "key",
		VersionKind:  model.VersionRegularObject,
		EcAlgo:       model.EcAlgoReedSolomon,
		DataShards:   dataShards,
		ParityShards: parityShards,
		BlockSize:    blockSize,
		ChecksumAlgo: model.ChecksumHighwayHash256,
		Distribution: distribution,
		Parts: []model.PartMeta{
			{Number: 1, Size: int64(len(objectData)), ActualSize: int64(len(objectData))},
		},
		Size: int64(len(objectData)),
	}

	return meta, &memSource{files: files}
}

func identityDistribution(total int) []int {
	d := make([]int, total)
	for i := range d {
		d[i] = i + 1
	}
	return d
}

func TestDecodeObjectAllShardsPresent(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk!!")
	meta, src := buildFixture(t, 4, 2, 16, data, identityDistribution(6))

	got, err := DecodeObject(src, meta, Options{})
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDecodeObjectMissingOneShard(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk!!")
	meta, src := buildFixture(t, 4, 2, 16, data, identityDistribution(6))
	delete(src.files, 1) // lose disk slot holding logical shard 1

	got, err := DecodeObject(src, meta, Options{})
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDecodeObjectInsufficientShards(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk!!")
	meta, src := buildFixture(t, 4, 2, 16, data, identityDistribution(6))
	delete(src.files, 0)
	delete(src.files, 1)
	delete(src.files, 2) // only 3 of 6 disks remain, need 4

	_, err := DecodeObject(src, meta, Options{})
	var ise *xlerr.InsufficientShardsError
	require.ErrorAs(t, err, &ise)
}

func TestDecodeObjectExactlyDShardsPresent(t *testing.T) {
	data := []byte("0123456789abcdef0123456789abcdef")
	meta, src := buildFixture(t, 4, 2, 8, data, identityDistribution(6))
	delete(src.files, 4)
	delete(src.files, 5)

	got, err := DecodeObject(src, meta, Options{})
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDecodeObjectBitrotDetected(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk!!")
	meta, src := buildFixture(t, 4, 2, 16, data, identityDistribution(6))
	src.files[0][33] ^= 0xff // flip a byte inside disk 0's first block payload

	_, err := DecodeObject(src, meta, Options{})
	var be *xlerr.BitrotError
	require.ErrorAs(t, err, &be)
}

func TestDecodeObjectShardSourceFailurePropagates(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk!!")
	meta, src := buildFixture(t, 4, 2, 16, data, identityDistribution(6))
	src.fail = map[int]error{2: stubIOError}

	_, err := DecodeObject(src, meta, Options{})
	var sse *xlerr.ShardSourceError
	require.ErrorAs(t, err, &sse)
}

var stubIOError = xlerr.ErrSizeOverflow // reused as a stand-in I/O cause

func TestDecodeObjectSkipDisksForcesReconstruction(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk!!")
	meta, src := buildFixture(t, 4, 2, 16, data, identityDistribution(6))

	got, err := DecodeObject(src, meta, Options{SkipDisks: []int{0}})
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDecodeObjectNonTrivialDistribution(t *testing.T) {
	data := []byte("distributed shard ordering must still decode correctly end to end")
	// disk slot 0 holds logical shard 3 (1-based erasure index 4), etc.
	distribution := []int{4, 1, 6, 2, 5, 3}
	meta, src := buildFixture(t, 4, 2, 16, data, distribution)

	got, err := DecodeObject(src, meta, Options{})
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDecodeObjectManyPartsViaFilesystemSource(t *testing.T) {
	part1 := []byte("first part of the object, sixteen+ bytes long")
	part2 := []byte("second part follows right after the first one")

	dataShards, parityShards, blockSize := 4, 2, int64(16)
	distribution := identityDistribution(dataShards + parityShards)

	roots := make([]string, dataShards+parityShards)
	for i := range roots {
		roots[i] = t.TempDir()
	}

	dataDir := "00000000-0000-0000-0000-000000000001"
	writePartFixture(t, roots, dataShards, parityShards, blockSize, distribution, "bucket", "key", dataDir, 1, part1)
	writePartFixture(t, roots, dataShards, parityShards, blockSize, distribution, "bucket", "key", dataDir, 2, part2)

	meta := model.ObjectMeta{
		Bucket:       "bucket",
		Key:          "key",
		VersionKind:  model.VersionRegularObject,
		EcAlgo:       model.EcAlgoReedSolomon,
		DataShards:   dataShards,
		ParityShards: parityShards,
		BlockSize:    blockSize,
		ChecksumAlgo: model.ChecksumHighwayHash256,
		Distribution: distribution,
		Parts: []model.PartMeta{
			{Number: 1, Size: int64(len(part1))},
			{Number: 2, Size: int64(len(part2))},
		},
		Size: int64(len(part1) + len(part2)),
	}
	meta.DataDir = mustParseUUID(t, dataDir)

	src := shardsource.New(roots)
	got, err := DecodeObject(src, meta, Options{})
	require.NoError(t, err)
	require.Equal(t, append(append([]byte{}, part1...), part2...), got)
}

func TestDecodeObjectDeleteMarkerYieldsEmpty(t *testing.T) {
	meta := model.ObjectMeta{VersionKind: model.VersionDeleteMarker}
	got, err := DecodeObject(&memSource{}, meta, Options{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDecodeObjectLegacyRejected(t *testing.T) {
	meta := model.ObjectMeta{VersionKind: model.VersionLegacy}
	_, err := DecodeObject(&memSource{}, meta, Options{})
	require.ErrorIs(t, err, xlerr.ErrLegacyOnly)
}

func TestDecodeObjectEmptyPart(t *testing.T) {
	meta := model.ObjectMeta{
		VersionKind:  model.VersionRegularObject,
		DataShards:   4,
		ParityShards: 2,
		BlockSize:    16,
		Distribution: identityDistribution(6),
		Parts:        []model.PartMeta{{Number: 1, Size: 0}},
		Size:         0,
	}
	got, err := DecodeObject(&memSource{}, meta, Options{})
	require.NoError(t, err)
	require.Empty(t, got)
}

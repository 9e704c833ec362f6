// Package sidecar parses the per-object meta-sidecar: a fixed binary
// framing header wrapping a self-describing value-tree payload, CRC-32C
// checked, that describes one object's erasure layout, versioning, and
// part structure.
package sidecar

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/cvhariharan/xlrecover/pkg/model"
	"github.com/cvhariharan/xlrecover/pkg/valuetree"
	"github.com/cvhariharan/xlrecover/pkg/xlerr"
)

// Magic is the fixed 4-byte sidecar header.
var Magic = [4]byte{'X', 'L', '2', ' '}

const (
	minSupportedMajor = 1
	minSupportedMinor = 3

	ecAlgoReedSolomon      = 1
	csumAlgoHighwayHash256 = 1

	defaultContentType = "application/octet-stream"
)

// Parse decodes raw meta-sidecar bytes into an ObjectMeta. bucket and key
// are filled in verbatim — the sidecar itself never names its own bucket
// or object key.
func Parse(data []byte, bucket, key string) (model.ObjectMeta, error) {
	if len(data) < 6 {
		return model.ObjectMeta{}, fmt.Errorf("sidecar: header truncated: %w", xlerr.ErrTruncated)
	}
	if [4]byte{data[0], data[1], data[2], data[3]} != Magic {
		return model.ObjectMeta{}, fmt.Errorf("sidecar: bad magic: %w", xlerr.ErrUnsupportedSidecarVersion)
	}

	major := data[4]
	minor := data[5]
	if major != minSupportedMajor || minor < minSupportedMinor {
		return model.ObjectMeta{}, fmt.Errorf(
			"sidecar: version %d.%d not supported (need %d.%d+): %w",
			major, minor, minSupportedMajor, minSupportedMinor, xlerr.ErrUnsupportedSidecarVersion,
		)
	}

	rest := data[6:]
	dec := valuetree.NewDecoder(rest)
	payload, err := dec.Decode()
	if err != nil {
		return model.ObjectMeta{}, fmt.Errorf("sidecar: decode payload: %w", err)
	}
	consumed := dec.Pos()

	if len(rest)-consumed < 4 {
		return model.ObjectMeta{}, fmt.Errorf("sidecar: crc truncated: %w", xlerr.ErrTruncated)
	}
	payloadBytes := rest[:consumed]
	wantCRC := binary.LittleEndian.Uint32(rest[consumed : consumed+4])
	gotCRC := crc32.Checksum(payloadBytes, crc32.MakeTable(crc32.Castagnoli))
	if gotCRC != wantCRC {
		return model.ObjectMeta{}, fmt.Errorf(
			"sidecar: crc mismatch: got %08x want %08x: %w", gotCRC, wantCRC, xlerr.ErrCorruptSidecar,
		)
	}

	versionsVal, ok := payload.MapGet("Versions")
	if !ok || versionsVal.Kind != valuetree.KindArray {
		return model.ObjectMeta{}, &xlerr.MissingFieldError{Name: "Versions"}
	}

	var selected valuetree.Value
	var selectedKind model.VersionKind
	found := false
	for _, v := range versionsVal.Array {
		typ, ok := v.MapGet("Type")
		if !ok {
			continue
		}
		raw, _ := typ.AsUint8()
		kind := versionKindFromRaw(raw)
		if kind == model.VersionLegacy || kind == model.VersionUnknown {
			continue
		}
		selected = v
		selectedKind = kind
		found = true
		break
	}
	if !found {
		return model.ObjectMeta{}, fmt.Errorf("sidecar: %w", xlerr.ErrLegacyOnly)
	}

	if hasInlineData(payload, selected) {
		return model.ObjectMeta{}, fmt.Errorf("sidecar: %w", xlerr.ErrInlineDataUnsupported)
	}

	meta := model.ObjectMeta{Bucket: bucket, Key: key, VersionKind: selectedKind}

	switch selectedKind {
	case model.VersionDeleteMarker:
		sub, ok := selected.MapGet("V2DelObj")
		if !ok {
			return model.ObjectMeta{}, &xlerr.MissingFieldError{Name: "V2DelObj"}
		}
		if err := parseDeleteMarker(sub, &meta); err != nil {
			return model.ObjectMeta{}, err
		}
	case model.VersionRegularObject:
		sub, ok := selected.MapGet("V2Obj")
		if !ok {
			return model.ObjectMeta{}, &xlerr.MissingFieldError{Name: "V2Obj"}
		}
		if err := parseObject(sub, &meta); err != nil {
			return model.ObjectMeta{}, err
		}
	}

	return meta, nil
}

// hasInlineData reports whether the selected version's payload was stored
// directly in the sidecar rather than in external shards. Real xl.meta
// files carry inline data in a top-level "Data" map keyed by the version
// ID's hex string; this library only ever reads shard bytes through a
// ShardSource, so an inline-data version can't be served and must be
// rejected rather than silently mis-decoded.
func hasInlineData(payload valuetree.Value, selected valuetree.Value) bool {
	dataVal, ok := payload.MapGet("Data")
	if !ok || dataVal.Kind != valuetree.KindMap || len(dataVal.Map) == 0 {
		return false
	}

	var idBytes []byte
	if sub, ok := selected.MapGet("V2Obj"); ok {
		if idVal, ok := sub.MapGet("ID"); ok && idVal.Kind == valuetree.KindBinary {
			idBytes = idVal.Bytes
		}
	} else if sub, ok := selected.MapGet("V2DelObj"); ok {
		if idVal, ok := sub.MapGet("ID"); ok && idVal.Kind == valuetree.KindBinary {
			idBytes = idVal.Bytes
		}
	}
	if idBytes == nil {
		return false
	}

	key := hex.EncodeToString(idBytes)
	for _, e := range dataVal.Map {
		if e.Key.Kind == valuetree.KindString && e.Key.Text == key &&
			e.Value.Kind == valuetree.KindBinary && len(e.Value.Bytes) > 0 {
			return true
		}
	}
	return false
}

func versionKindFromRaw(v uint8) model.VersionKind {
	switch v {
	case 1:
		return model.VersionRegularObject
	case 2:
		return model.VersionDeleteMarker
	case 3:
		return model.VersionLegacy
	default:
		return model.VersionUnknown
	}
}

func parseUUID16(v valuetree.Value, field string) (uuid.UUID, error) {
	if v.Kind != valuetree.KindBinary || len(v.Bytes) != 16 {
		return uuid.UUID{}, &xlerr.MissingFieldError{Name: field}
	}
	var u uuid.UUID
	copy(u[:], v.Bytes)
	return u, nil
}

func parseDeleteMarker(v valuetree.Value, meta *model.ObjectMeta) error {
	idVal, ok := v.MapGet("ID")
	if !ok {
		return &xlerr.MissingFieldError{Name: "ID"}
	}
	id, err := parseUUID16(idVal, "ID")
	if err != nil {
		return err
	}
	meta.VersionID = id

	mtimeVal, ok := v.MapGet("MTime")
	if !ok {
		return &xlerr.MissingFieldError{Name: "MTime"}
	}
	mtime, ok := mtimeVal.AsInt64()
	if !ok {
		return &xlerr.MissingFieldError{Name: "MTime"}
	}
	meta.ModTime = mtime

	if sysVal, ok := v.MapGet("MetaSys"); ok {
		meta.SystemMeta = parseStringMap(sysVal)
	}

	// Delete markers carry no parts and have zero size, per the spec's
	// invariant — regardless of what a malformed sidecar might claim.
	meta.Parts = nil
	meta.Size = 0
	return nil
}

func parseObject(v valuetree.Value, meta *model.ObjectMeta) error {
	required := func(name string) (valuetree.Value, error) {
		val, ok := v.MapGet(name)
		if !ok {
			return valuetree.Value{}, &xlerr.MissingFieldError{Name: name}
		}
		return val, nil
	}

	idVal, err := required("ID")
	if err != nil {
		return err
	}
	id, err := parseUUID16(idVal, "ID")
	if err != nil {
		return err
	}
	meta.VersionID = id

	ddirVal, err := required("DDir")
	if err != nil {
		return err
	}
	ddir, err := parseUUID16(ddirVal, "DDir")
	if err != nil {
		return err
	}
	meta.DataDir = ddir

	ecAlgoVal, err := required("EcAlgo")
	if err != nil {
		return err
	}
	ecAlgoRaw, ok := ecAlgoVal.AsUint8()
	if !ok || ecAlgoRaw != ecAlgoReedSolomon {
		return fmt.Errorf("sidecar: EcAlgo=%v: %w", ecAlgoVal, xlerr.ErrUnsupportedEcAlgo)
	}
	meta.EcAlgo = model.EcAlgoReedSolomon

	ecM, err := required("EcM")
	if err != nil {
		return err
	}
	d, ok := ecM.AsInt64()
	if !ok {
		return &xlerr.MissingFieldError{Name: "EcM"}
	}
	meta.DataShards = int(d)

	ecN, err := required("EcN")
	if err != nil {
		return err
	}
	p, ok := ecN.AsInt64()
	if !ok {
		return &xlerr.MissingFieldError{Name: "EcN"}
	}
	meta.ParityShards = int(p)

	ecBSize, err := required("EcBSize")
	if err != nil {
		return err
	}
	bsize, ok := ecBSize.AsInt64()
	if !ok {
		return &xlerr.MissingFieldError{Name: "EcBSize"}
	}
	meta.BlockSize = bsize

	ecIndex, err := required("EcIndex")
	if err != nil {
		return err
	}
	idx, ok := ecIndex.AsInt64()
	if !ok {
		return &xlerr.MissingFieldError{Name: "EcIndex"}
	}
	meta.ErasureIndex = int(idx)

	ecDist, err := required("EcDist")
	if err != nil {
		return err
	}
	if ecDist.Kind != valuetree.KindArray {
		return &xlerr.MissingFieldError{Name: "EcDist"}
	}
	dist := make([]int, len(ecDist.Array))
	for i, e := range ecDist.Array {
		n, ok := e.AsUint8()
		if !ok {
			return &xlerr.MissingFieldError{Name: "EcDist"}
		}
		dist[i] = int(n)
	}
	meta.Distribution = dist

	csumAlgo, err := required("CSumAlgo")
	if err != nil {
		return err
	}
	csumRaw, ok := csumAlgo.AsUint8()
	if !ok || csumRaw != csumAlgoHighwayHash256 {
		return fmt.Errorf("sidecar: CSumAlgo=%v: %w", csumAlgo, xlerr.ErrUnsupportedChecksum)
	}
	meta.ChecksumAlgo = model.ChecksumHighwayHash256

	mtimeVal, err := required("MTime")
	if err != nil {
		return err
	}
	mtime, ok := mtimeVal.AsInt64()
	if !ok {
		return &xlerr.MissingFieldError{Name: "MTime"}
	}
	meta.ModTime = mtime

	partNumsVal, err := required("PartNums")
	if err != nil {
		return err
	}
	partSizesVal, err := required("PartSizes")
	if err != nil {
		return err
	}
	if partNumsVal.Kind != valuetree.KindArray || partSizesVal.Kind != valuetree.KindArray {
		return &xlerr.MissingFieldError{Name: "PartNums"}
	}

	var actualSizes []valuetree.Value
	if asVal, ok := v.MapGet("PartASizes"); ok && asVal.Kind == valuetree.KindArray {
		actualSizes = asVal.Array
	}
	var etags []valuetree.Value
	if etVal, ok := v.MapGet("PartETags"); ok && etVal.Kind == valuetree.KindArray {
		etags = etVal.Array
	}

	parts := make([]model.PartMeta, len(partNumsVal.Array))
	var total int64
	for i, numVal := range partNumsVal.Array {
		n, ok := numVal.AsInt64()
		if !ok {
			return &xlerr.MissingFieldError{Name: "PartNums"}
		}
		var size int64
		if i < len(partSizesVal.Array) {
			size, _ = partSizesVal.Array[i].AsInt64()
		}
		actual := size
		if i < len(actualSizes) {
			if a, ok := actualSizes[i].AsInt64(); ok {
				actual = a
			}
		}
		var etag string
		if i < len(etags) {
			etag = etags[i].AsString()
		}
		parts[i] = model.PartMeta{Number: int32(n), Size: size, ActualSize: actual, ETag: etag}
		total += size
	}
	meta.Parts = parts
	meta.Size = total

	if sysVal, ok := v.MapGet("MetaSys"); ok {
		meta.SystemMeta = parseStringMap(sysVal)
	}
	if usrVal, ok := v.MapGet("MetaUsr"); ok {
		meta.UserMeta = parseStringMap(usrVal)
	}

	meta.ETag = etagFromSystemMeta(meta.SystemMeta)
	meta.ContentType = defaultContentType
	if ct, ok := meta.UserMeta["content-type"]; ok && ct != "" {
		meta.ContentType = ct
	}

	return nil
}

func etagFromSystemMeta(sys map[string]string) string {
	if sys == nil {
		return ""
	}
	return sys["etag"]
}

func parseStringMap(v valuetree.Value) map[string]string {
	if v.Kind != valuetree.KindMap {
		return nil
	}
	out := make(map[string]string, len(v.Map))
	for _, e := range v.Map {
		if e.Key.Kind != valuetree.KindString {
			continue
		}
		switch e.Value.Kind {
		case valuetree.KindString:
			out[e.Key.Text] = e.Value.Text
		case valuetree.KindBinary:
			out[e.Key.Text] = hex.EncodeToString(e.Value.Bytes)
		}
	}
	return out
}

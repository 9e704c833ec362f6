// Package topology parses the per-disk topology-doc (MinIO's format.json)
// and aggregates several disks' documents into a single cluster-wide view.
package topology

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cvhariharan/xlrecover/pkg/model"
	"github.com/cvhariharan/xlrecover/pkg/xlerr"
)

var knownVersions = map[string]bool{"1": true, "2": true, "3": true}

// rawDoc mirrors the on-disk JSON shape. Field names follow the document
// verbatim; the exported Topology type is the normalized projection.
type rawDoc struct {
	Version string `json:"version"`
	Format  string `json:"format"`
	ID      string `json:"id"`
	XL      struct {
		Version string     `json:"version"`
		This    string     `json:"this"`
		Sets    [][]string `json:"sets"`
	} `json:"xl"`
}

// Parse decodes a single disk's topology-doc.
func Parse(data []byte) (model.Topology, error) {
	var raw rawDoc
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Topology{}, fmt.Errorf("topology: decode json: %w", err)
	}

	if !knownVersions[raw.XL.Version] {
		return model.Topology{}, fmt.Errorf(
			"topology: xl.version %q: %w", raw.XL.Version, xlerr.ErrUnsupportedTopologyVersion,
		)
	}

	poolID, err := uuid.Parse(raw.ID)
	if err != nil {
		return model.Topology{}, fmt.Errorf("topology: pool id %q: %w", raw.ID, err)
	}
	thisDisk, err := uuid.Parse(raw.XL.This)
	if err != nil {
		return model.Topology{}, fmt.Errorf("topology: xl.this %q: %w", raw.XL.This, err)
	}

	sets := make([][]uuid.UUID, len(raw.XL.Sets))
	for i, set := range raw.XL.Sets {
		row := make([]uuid.UUID, len(set))
		for j, s := range set {
			u, err := uuid.Parse(s)
			if err != nil {
				return model.Topology{}, fmt.Errorf("topology: xl.sets[%d][%d] %q: %w", i, j, s, err)
			}
			row[j] = u
		}
		sets[i] = row
	}

	return model.Topology{
		PoolID:   poolID,
		Version:  raw.XL.Version,
		ThisDisk: thisDisk,
		Sets:     sets,
	}, nil
}

// BuildClusterConfig cross-references every disk's topology-doc into a
// single multi-pool view. disks need not cover every member of a pool's
// erasure sets — disks named in a set but absent from disks get a nil
// DeviceID in the result, so a caller with a partial disk set can still
// see the full shape of the pool it belongs to.
func BuildClusterConfig(disks []model.DiskTopology) (model.ClusterConfig, error) {
	if len(disks) == 0 {
		return model.ClusterConfig{}, fmt.Errorf("topology: no topology-docs provided")
	}

	poolOrder := make([]uuid.UUID, 0)
	poolDisks := make(map[uuid.UUID][]model.DiskTopology)
	for _, d := range disks {
		if _, ok := poolDisks[d.Doc.PoolID]; !ok {
			poolOrder = append(poolOrder, d.Doc.PoolID)
		}
		poolDisks[d.Doc.PoolID] = append(poolDisks[d.Doc.PoolID], d)
	}

	pools := make([]model.PoolConfig, 0, len(poolOrder))
	for poolIdx, poolID := range poolOrder {
		members := poolDisks[poolID]

		setsConfig := members[0].Doc.Sets
		if len(setsConfig) == 0 {
			return model.ClusterConfig{}, fmt.Errorf("topology: pool %s declares no erasure sets", poolID)
		}

		uuidToDevice := make(map[uuid.UUID]int, len(members))
		for _, d := range members {
			uuidToDevice[d.Doc.ThisDisk] = d.DeviceIndex
		}

		sets := make([][]model.DiskInfo, len(setsConfig))
		for setIdx, set := range setsConfig {
			infos := make([]model.DiskInfo, len(set))
			for diskIdx, u := range set {
				info := model.DiskInfo{
					UUID:      u,
					PoolIndex: poolIdx,
					SetIndex:  setIdx,
					DiskIndex: diskIdx,
					PoolID:    poolID,
				}
				if dev, ok := uuidToDevice[u]; ok {
					devCopy := dev
					info.DeviceID = &devCopy
				}
				infos[diskIdx] = info
			}
			sets[setIdx] = infos
		}

		pools = append(pools, model.PoolConfig{
			PoolID:    poolID,
			PoolIndex: poolIdx,
			Sets:      sets,
		})
	}

	return model.ClusterConfig{Pools: pools}, nil
}

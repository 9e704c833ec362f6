package model

import "github.com/google/uuid"

// Topology is the parsed content of a single disk's topology-doc
// (format.json in MinIO's own naming).
type Topology struct {
	PoolID  uuid.UUID
	Version string
	// ThisDisk is the UUID of the disk this topology-doc was read from.
	ThisDisk uuid.UUID
	// Sets is the pool's erasure sets, each an ordered list of disk UUIDs.
	// Ordering within a set is significant: it defines the disk-index used
	// by decoders.
	Sets [][]uuid.UUID
}

// DiskTopology pairs a caller-assigned device index with the topology-doc
// read from that device. BuildClusterConfig takes a slice of these so it
// can cross-reference which devices the caller actually has in hand
// against the full set of disks a pool's topology-doc declares.
type DiskTopology struct {
	DeviceIndex int
	Doc         Topology
}

// DiskInfo places a single disk within a cluster: which pool, which
// erasure set, and its 0-based index within that set.
type DiskInfo struct {
	UUID       uuid.UUID
	PoolIndex  int
	SetIndex   int
	DiskIndex  int
	PoolID     uuid.UUID
	// DeviceID is the caller-supplied device index for this disk, or nil
	// if the disk named in the topology-doc was not among the devices the
	// caller passed to BuildClusterConfig.
	DeviceID *int
}

// PoolConfig is one pool's erasure sets, each fully resolved to DiskInfo.
type PoolConfig struct {
	PoolID    uuid.UUID
	PoolIndex int
	Sets      [][]DiskInfo
}

// ClusterConfig is the full, multi-pool topology built by aggregating every
// disk's topology-doc.
type ClusterConfig struct {
	Pools []PoolConfig
}

// TotalSets returns the number of erasure sets across every pool.
func (c ClusterConfig) TotalSets() int {
	n := 0
	for _, p := range c.Pools {
		n += len(p.Sets)
	}
	return n
}

package entity

import "sync"

// CloudInfo identifies a (cloud, region, zone) placement coordinate.
type CloudInfo struct {
	Cloud  string `json:"cloud"`
	Region string `json:"region"`
	Zone   string `json:"zone"`
}

// PlacementBlock is a (cloud_info, min_num_replicas) placement constraint.
type PlacementBlock struct {
	CloudInfo      CloudInfo `json:"cloud_info"`
	MinNumReplicas int       `json:"min_num_replicas"`
}

// PlacementInfo is a full replication placement policy (§3 ClusterConfig).
type PlacementInfo struct {
	NumReplicas     int              `json:"num_replicas"`
	PlacementUUID   string           `json:"placement_uuid,omitempty"`
	PlacementBlocks []PlacementBlock `json:"placement_blocks,omitempty"`
}

// ReplicationInfoConfig is the cluster-wide default replication policy.
type ReplicationInfoConfig struct {
	LiveReplicas       PlacementInfo `json:"live_replicas"`
	ReadReplicas       []PlacementInfo `json:"read_replicas,omitempty"`
	AffinitizedLeaders []CloudInfo     `json:"affinitized_leaders,omitempty"`
}

// Blacklist is a set of excluded hosts plus the replica/leader load observed
// at blacklist-time (used to compute load-move progress).
type Blacklist struct {
	Hosts             []string `json:"hosts,omitempty"`
	InitialReplicaLoad int     `json:"initial_replica_load,omitempty"`
	InitialLeaderLoad  int     `json:"initial_leader_load,omitempty"`
}

// ClusterConfigPB is the singleton cluster configuration payload (§3).
type ClusterConfigPB struct {
	Version         uint32                `json:"version"`
	ClusterUUID     string                `json:"cluster_uuid"`
	ReplicationInfo ReplicationInfoConfig `json:"replication_info"`
	ServerBlacklist Blacklist             `json:"server_blacklist"`
	LeaderBlacklist Blacklist             `json:"leader_blacklist"`
}

func (c *ClusterConfigPB) Clone() *ClusterConfigPB {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ReplicationInfo.ReadReplicas = append([]PlacementInfo(nil), c.ReplicationInfo.ReadReplicas...)
	cp.ReplicationInfo.AffinitizedLeaders = append([]CloudInfo(nil), c.ReplicationInfo.AffinitizedLeaders...)
	cp.ServerBlacklist.Hosts = append([]string(nil), c.ServerBlacklist.Hosts...)
	cp.LeaderBlacklist.Hosts = append([]string(nil), c.LeaderBlacklist.Hosts...)
	return &cp
}

// ClusterConfig is the CoW wrapper around the singleton ClusterConfigPB.
type ClusterConfig struct {
	mu        sync.RWMutex
	committed *ClusterConfigPB
	dirty     *ClusterConfigPB
}

func NewClusterConfig(pb *ClusterConfigPB) *ClusterConfig { return &ClusterConfig{committed: pb} }

func (c *ClusterConfig) LockForRead() *ClusterConfigPB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.committed
}

func (c *ClusterConfig) LockForWrite() *ClusterConfigPB {
	c.mu.Lock()
	c.dirty = c.committed.Clone()
	return c.dirty
}

func (c *ClusterConfig) Commit()        { c.committed = c.dirty; c.dirty = nil; c.mu.Unlock() }
func (c *ClusterConfig) AbortMutation() { c.dirty = nil; c.mu.Unlock() }

// sysConfigClusterConfigKey is the fixed SysCatalog row key for the
// singleton cluster configuration (§3 ClusterConfig).
const sysConfigClusterConfigKey = "cluster_config"

// EntityKind names the SysCatalog bucket a ClusterConfigPB is stored under.
func (c *ClusterConfigPB) EntityKind() string { return "sys_config" }

// EntityID is the fixed row key of the singleton cluster configuration.
func (c *ClusterConfigPB) EntityID() string { return sysConfigClusterConfigKey }

// YsqlCatalogConfigPB is the singleton YSQL catalog bootstrap payload (§3).
type YsqlCatalogConfigPB struct {
	Version    uint32 `json:"version"`
	InitdbDone bool   `json:"initdb_done"`
	InitdbError string `json:"initdb_error,omitempty"`
}

func (c *YsqlCatalogConfigPB) Clone() *YsqlCatalogConfigPB {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// YsqlCatalogConfig is the CoW wrapper around YsqlCatalogConfigPB.
type YsqlCatalogConfig struct {
	mu        sync.RWMutex
	committed *YsqlCatalogConfigPB
	dirty     *YsqlCatalogConfigPB
}

func NewYsqlCatalogConfig(pb *YsqlCatalogConfigPB) *YsqlCatalogConfig {
	return &YsqlCatalogConfig{committed: pb}
}

func (c *YsqlCatalogConfig) LockForRead() *YsqlCatalogConfigPB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.committed
}

func (c *YsqlCatalogConfig) LockForWrite() *YsqlCatalogConfigPB {
	c.mu.Lock()
	c.dirty = c.committed.Clone()
	return c.dirty
}

func (c *YsqlCatalogConfig) Commit()        { c.committed = c.dirty; c.dirty = nil; c.mu.Unlock() }
func (c *YsqlCatalogConfig) AbortMutation() { c.dirty = nil; c.mu.Unlock() }

// sysConfigYsqlCatalogKey is the fixed SysCatalog row key for the singleton
// YSQL catalog bootstrap config (§3 YsqlCatalogConfig).
const sysConfigYsqlCatalogKey = "ysql_catalog_config"

// EntityKind names the SysCatalog bucket a YsqlCatalogConfigPB is stored
// under. It shares the sys_config bucket with ClusterConfigPB, distinguished
// by EntityID.
func (c *YsqlCatalogConfigPB) EntityKind() string { return "sys_config" }

// EntityID is the fixed row key of the singleton YSQL catalog config.
func (c *YsqlCatalogConfigPB) EntityID() string { return sysConfigYsqlCatalogKey }

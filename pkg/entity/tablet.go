package entity

import (
	"sync"
	"time"
)

// TabletState is the closed lifecycle enum for a Tablet (§4.6).
type TabletState string

const (
	TabletPreparing TabletState = "PREPARING"
	TabletCreating  TabletState = "CREATING"
	TabletRunning   TabletState = "RUNNING"
	TabletReplaced  TabletState = "REPLACED"
	TabletDeleted   TabletState = "DELETED"
)

// ReplicaRole mirrors the raft role of one tablet peer.
type ReplicaRole string

const (
	RoleLeader   ReplicaRole = "LEADER"
	RoleFollower ReplicaRole = "FOLLOWER"
	RoleLearner  ReplicaRole = "LEARNER"
)

// MemberType distinguishes voting from read-replica members (§3
// Replica.member_type).
type MemberType string

const (
	MemberVoter    MemberType = "VOTER"
	MemberObserver MemberType = "OBSERVER"
)

// ReplicaState tracks the reported lifecycle of one replica.
type ReplicaState string

const (
	ReplicaStarting   ReplicaState = "STARTING"
	ReplicaRunning    ReplicaState = "RUNNING"
	ReplicaTombstoned ReplicaState = "TOMBSTONED"
	ReplicaFailed     ReplicaState = "FAILED"
)

// DriveInfo is per-replica disk placement metadata (§4.1
// UpdateReplicaDriveInfo).
type DriveInfo struct {
	WalDir  string `json:"wal_dir"`
	DataDir string `json:"data_dir"`
}

// Replica is one entry of a tablet's replica_locations map.
type Replica struct {
	TServerID            string       `json:"tserver_id"`
	Role                 ReplicaRole  `json:"role"`
	MemberType           MemberType   `json:"member_type"`
	State                ReplicaState `json:"state"`
	FsDataDir            string       `json:"fs_data_dir,omitempty"`
	Drive                DriveInfo    `json:"drive_info"`
	TimeUpdated          time.Time    `json:"time_updated"`
	ShouldDisableLBMove  bool         `json:"should_disable_lb_move"`
}

// RaftConfigPeer is one voter/observer entry of a committed consensus
// config.
type RaftConfigPeer struct {
	TServerID  string     `json:"tserver_id"`
	MemberType MemberType `json:"member_type"`
}

// RaftConfig is the committed consensus configuration for a tablet.
type RaftConfig struct {
	Peers     []RaftConfigPeer `json:"peers"`
	OpIDIndex int64            `json:"opid_index"`
}

// ConsensusState is {term, config, leader_uuid} (§3 Tablet.
// committed_consensus_state).
type ConsensusState struct {
	Term       int64      `json:"term"`
	Config     RaftConfig `json:"config"`
	LeaderUUID string     `json:"leader_uuid,omitempty"`
}

// Partition is the tablet's key-range bounds.
type Partition struct {
	PartitionKeyStart string `json:"partition_key_start"`
	PartitionKeyEnd   string `json:"partition_key_end,omitempty"`
}

// TabletPB is the versioned serializable Tablet payload (§3).
type TabletPB struct {
	ID                        string            `json:"id"`
	TableID                   string            `json:"table_id"` // primary owner
	TableIDs                  []string          `json:"table_ids,omitempty"` // colocated sharing
	Partition                 Partition         `json:"partition"`
	State                     TabletState       `json:"state"`
	CommittedConsensusState   ConsensusState    `json:"committed_consensus_state"`
	ReplicaLocations          map[string]Replica `json:"replica_locations"`
	ReportedSchemaVersion     map[string]uint32  `json:"reported_schema_version,omitempty"` // table_id -> version
	SplitDepth                int               `json:"split_depth"`
	SplitParentTabletID       string            `json:"split_parent_tablet_id,omitempty"`
	SplitTabletIDs            []string          `json:"split_tablet_ids,omitempty"`
	HideHybridTime            int64             `json:"hide_hybrid_time,omitempty"`
	RetainedBySnapshotSchedules []string        `json:"retained_by_snapshot_schedules,omitempty"`
	ReplacementTabletID       string            `json:"replacement_tablet_id,omitempty"` // set when REPLACED
	CreatingStartedAt         time.Time         `json:"creating_started_at,omitempty"`
	ElectionTriggered         bool              `json:"election_triggered"`
	MayHaveOrphanedPostSplitData bool           `json:"may_have_orphaned_post_split_data,omitempty"`
	CreatedAt                 time.Time         `json:"created_at"`
}

// EntityKind names the SysCatalog bucket a TabletPB is stored under.
func (t *TabletPB) EntityKind() string { return "tablets" }

// EntityID is the tablet's catalog id, used as the SysCatalog row key.
func (t *TabletPB) EntityID() string { return t.ID }

func (t *TabletPB) Clone() *TabletPB {
	if t == nil {
		return nil
	}
	cp := *t
	if t.TableIDs != nil {
		cp.TableIDs = append([]string(nil), t.TableIDs...)
	}
	if t.ReplicaLocations != nil {
		cp.ReplicaLocations = make(map[string]Replica, len(t.ReplicaLocations))
		for k, v := range t.ReplicaLocations {
			cp.ReplicaLocations[k] = v
		}
	}
	if t.ReportedSchemaVersion != nil {
		cp.ReportedSchemaVersion = make(map[string]uint32, len(t.ReportedSchemaVersion))
		for k, v := range t.ReportedSchemaVersion {
			cp.ReportedSchemaVersion[k] = v
		}
	}
	return &cp
}

// TabletInfo is the CoW wrapper around TabletPB (§4.1).
type TabletInfo struct {
	mu        sync.RWMutex
	committed *TabletPB
	dirty     *TabletPB
}

func NewTabletInfo(pb *TabletPB) *TabletInfo {
	if pb.ReplicaLocations == nil {
		pb.ReplicaLocations = make(map[string]Replica)
	}
	return &TabletInfo{committed: pb}
}

func (t *TabletInfo) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.committed.ID
}

func (t *TabletInfo) LockForRead() *TabletPB { t.mu.RLock(); defer t.mu.RUnlock(); return t.committed }

func (t *TabletInfo) LockForWrite() *TabletPB {
	t.mu.Lock()
	t.dirty = t.committed.Clone()
	return t.dirty
}

func (t *TabletInfo) Commit() {
	t.committed = t.dirty
	t.dirty = nil
	t.mu.Unlock()
}

func (t *TabletInfo) AbortMutation() {
	t.dirty = nil
	t.mu.Unlock()
}

// GetReplicaLocations returns a snapshot copy of the replica map.
func (t *TabletInfo) GetReplicaLocations() map[string]Replica {
	pb := t.LockForRead()
	out := make(map[string]Replica, len(pb.ReplicaLocations))
	for k, v := range pb.ReplicaLocations {
		out[k] = v
	}
	return out
}

// SetReplicaLocations replaces the entire replica map (used after a full
// reconcile pass in §4.7).
func (t *TabletInfo) SetReplicaLocations(m map[string]Replica) {
	pb := t.LockForWrite()
	pb.ReplicaLocations = m
	t.Commit()
}

// UpdateReplicaLocations upserts a single replica entry.
func (t *TabletInfo) UpdateReplicaLocations(r Replica) {
	pb := t.LockForWrite()
	if pb.ReplicaLocations == nil {
		pb.ReplicaLocations = make(map[string]Replica)
	}
	r.TimeUpdated = time.Now()
	pb.ReplicaLocations[r.TServerID] = r
	t.Commit()
}

// UpdateReplicaDriveInfo updates just the drive info of an existing
// replica; no-op if the replica is unknown.
func (t *TabletInfo) UpdateReplicaDriveInfo(tserverID string, d DriveInfo) {
	pb := t.LockForWrite()
	if r, ok := pb.ReplicaLocations[tserverID]; ok {
		r.Drive = d
		pb.ReplicaLocations[tserverID] = r
	}
	t.Commit()
}

// GetLeader returns the tserver id of the current leader replica, if known.
func (t *TabletInfo) GetLeader() (string, bool) {
	pb := t.LockForRead()
	if pb.CommittedConsensusState.LeaderUUID != "" {
		return pb.CommittedConsensusState.LeaderUUID, true
	}
	return "", false
}

// GetLeaderReplicaDriveInfo returns the leader replica's drive info.
func (t *TabletInfo) GetLeaderReplicaDriveInfo() (DriveInfo, bool) {
	leader, ok := t.GetLeader()
	if !ok {
		return DriveInfo{}, false
	}
	pb := t.LockForRead()
	r, ok := pb.ReplicaLocations[leader]
	return r.Drive, ok
}

// InitiateElection is a one-shot guard: it returns true (and flips the
// flag) only the first time it is called for this tablet, matching the
// single-shot InitiateElection semantics of §4.6.
func (t *TabletInfo) InitiateElection() bool {
	pb := t.LockForWrite()
	if pb.ElectionTriggered {
		t.AbortMutation()
		return false
	}
	pb.ElectionTriggered = true
	t.Commit()
	return true
}

// SetReportedSchemaVersion records the schema version a tablet has reported
// for one of its owning tables (§4.1 set_reported_schema_version).
func (t *TabletInfo) SetReportedSchemaVersion(tableID string, v uint32) {
	pb := t.LockForWrite()
	if pb.ReportedSchemaVersion == nil {
		pb.ReportedSchemaVersion = make(map[string]uint32)
	}
	pb.ReportedSchemaVersion[tableID] = v
	t.Commit()
}

// LastUpdateTime returns the most recent replica TimeUpdated across the
// tablet, used by heartbeat staleness checks.
func (t *TabletInfo) LastUpdateTime() time.Time {
	pb := t.LockForRead()
	var latest time.Time
	for _, r := range pb.ReplicaLocations {
		if r.TimeUpdated.After(latest) {
			latest = r.TimeUpdated
		}
	}
	return latest
}

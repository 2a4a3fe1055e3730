package entity

import (
	"sort"
	"sync"
	"time"
)

// TableState is the closed lifecycle enum for a Table (§4.5).
type TableState string

const (
	TablePreparing TableState = "PREPARING"
	TableRunning   TableState = "RUNNING"
	TableAltering  TableState = "ALTERING"
	TableDeleting  TableState = "DELETING"
	TableDeleted   TableState = "DELETED"
)

// HideState tracks hide-only retention independently of State (§4.5).
type HideState string

const (
	HideVisible HideState = "VISIBLE"
	HideHiding  HideState = "HIDING"
	HideHidden  HideState = "HIDDEN"
)

// IndexPermission is the multi-phase backfill state machine for an index
// entry (§4.5 BackfillIndex / LaunchBackfillIndexForTable).
type IndexPermission string

const (
	PermissionDeleteOnly           IndexPermission = "DELETE_ONLY"
	PermissionWriteAndDelete       IndexPermission = "WRITE_AND_DELETE"
	PermissionDoBackfill           IndexPermission = "DO_BACKFILL"
	PermissionReadWriteAndDelete   IndexPermission = "READ_WRITE_AND_DELETE"
	PermissionWriteAndDeleteWhileRemoving IndexPermission = "WRITE_AND_DELETE_WHILE_REMOVING"
)

// IndexInfo describes one index entry carried on the indexed table's schema.
type IndexInfo struct {
	TableID    string          `json:"table_id"`
	Permission IndexPermission `json:"permission"`
}

// Column is one element of a Schema.
type Column struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	IsKey    bool   `json:"is_key"`
	IsHash   bool   `json:"is_hash"`
}

// Schema is the ordered column set plus the next id to assign.
type Schema struct {
	Columns      []Column `json:"columns"`
	NextColumnID uint32   `json:"next_column_id"`
}

// Clone deep-copies a schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	cp := &Schema{NextColumnID: s.NextColumnID}
	cp.Columns = append(cp.Columns, s.Columns...)
	return cp
}

// KeyColumn returns the first key column, if any.
func (s *Schema) KeyColumn() (Column, bool) {
	for _, c := range s.Columns {
		if c.IsKey {
			return c, true
		}
	}
	return Column{}, false
}

// PartitionSchemaKind distinguishes hash vs range partitioning (§4.5 step 3).
type PartitionSchemaKind string

const (
	PartitionHash  PartitionSchemaKind = "HASH"
	PartitionRange PartitionSchemaKind = "RANGE"
	PartitionSingle PartitionSchemaKind = "SINGLE" // colocated/tablegroup
)

// PartitionSchema describes how the table's keyspace is sharded.
type PartitionSchema struct {
	Kind PartitionSchemaKind `json:"kind"`
}

// ReplicationInfo mirrors ClusterConfig's replication_info shape, usable as
// a per-table override (§3 Table.replication_info).
type ReplicationInfo struct {
	LiveReplicas PlacementInfo   `json:"live_replicas"`
	ReadReplicas []PlacementInfo `json:"read_replicas,omitempty"`
}

// CreateTableErrorStatus records a sticky create-time failure (§4.1
// SetCreateTableErrorStatus / GetCreateTableErrorStatus).
type CreateTableErrorStatus struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TablePB is the versioned serializable Table payload (§3).
type TablePB struct {
	ID                    string                  `json:"id"`
	Name                  string                  `json:"name"`
	NamespaceID           string                  `json:"namespace_id"`
	TableType             DatabaseType            `json:"table_type"`
	Schema                *Schema                 `json:"schema"`
	PartitionSchema       PartitionSchema         `json:"partition_schema"`
	ReplicationInfo       *ReplicationInfo        `json:"replication_info,omitempty"`
	TablespaceID          string                  `json:"tablespace_id,omitempty"`
	State                 TableState              `json:"state"`
	HideState             HideState               `json:"hide_state"`
	Version               uint32                  `json:"version"`
	Indexes               []IndexInfo             `json:"indexes,omitempty"`
	IndexedTableID        string                  `json:"indexed_table_id,omitempty"` // set when this table IS an index
	IndexPermission       IndexPermission         `json:"index_permission,omitempty"`
	FullyAppliedSchema    *Schema                 `json:"fully_applied_schema,omitempty"`
	Colocated             bool                    `json:"colocated"`
	IsPgSharedTable       bool                    `json:"is_pg_shared_table"`
	TablegroupID          string                  `json:"tablegroup_id,omitempty"`
	CopartitionTableID    string                  `json:"copartition_table_id,omitempty"`
	PartitionListVersion  uint64                  `json:"partition_list_version"`
	WalRetentionSecs      int64                   `json:"wal_retention_secs"`
	PendingTxnID          string                  `json:"pending_txn_id,omitempty"`
	RetainDeleteMarkers   bool                    `json:"retain_delete_markers"`
	CreateErrorStatus     *CreateTableErrorStatus `json:"create_error_status,omitempty"`

	// Split-gating facts (§4.9 ValidateSplitCandidate); all default false
	// until a snapshot-schedule or xCluster producer registry exists to
	// populate them.
	CoveredBySnapshotSchedule bool `json:"covered_by_snapshot_schedule,omitempty"`
	XClusterReplicated        bool `json:"xcluster_replicated,omitempty"`
	IsTransactionStatusTable  bool `json:"is_transaction_status_table,omitempty"`

	CreatedAt             time.Time               `json:"created_at"`
}

// EntityKind names the SysCatalog bucket a TablePB is stored under.
func (t *TablePB) EntityKind() string { return "tables" }

// EntityID is the table's catalog id, used as the SysCatalog row key.
func (t *TablePB) EntityID() string { return t.ID }

// Clone deep-copies the table payload, including nested schema and indexes.
func (t *TablePB) Clone() *TablePB {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Schema = t.Schema.Clone()
	cp.FullyAppliedSchema = t.FullyAppliedSchema.Clone()
	if t.Indexes != nil {
		cp.Indexes = append([]IndexInfo(nil), t.Indexes...)
	}
	if t.ReplicationInfo != nil {
		ri := *t.ReplicationInfo
		cp.ReplicationInfo = &ri
	}
	if t.CreateErrorStatus != nil {
		es := *t.CreateErrorStatus
		cp.CreateErrorStatus = &es
	}
	return &cp
}

// TaskHandle is the view a TableInfo keeps of an outstanding async task
// (C8), enough to abort it or wait on it without importing pkg/tasks (which
// itself depends on entity) and creating an import cycle.
type TaskHandle interface {
	Abort()
	Done() <-chan struct{}
	Kind() string
}

// TableInfo is the CoW wrapper around TablePB plus the ordered tablet set
// and registered task bookkeeping (§4.1).
type TableInfo struct {
	mu        sync.RWMutex
	committed *TablePB
	dirty     *TablePB

	tabletsMu sync.RWMutex
	// active maps partition_key_start -> tablet; GetTablets sorts by key on read.
	active   map[string]*TabletInfo
	inactive map[string]*TabletInfo // hidden/split/replaced parents

	tasksMu sync.Mutex
	tasks   []TaskHandle
}

// NewTableInfo wraps a freshly-allocated table payload.
func NewTableInfo(pb *TablePB) *TableInfo {
	return &TableInfo{
		committed: pb,
		active:    make(map[string]*TabletInfo),
		inactive:  make(map[string]*TabletInfo),
	}
}

func (t *TableInfo) LockForRead() *TablePB { t.mu.RLock(); defer t.mu.RUnlock(); return t.committed }

func (t *TableInfo) LockForWrite() *TablePB {
	t.mu.Lock()
	t.dirty = t.committed.Clone()
	return t.dirty
}

func (t *TableInfo) Commit() {
	t.committed = t.dirty
	t.dirty = nil
	t.mu.Unlock()
}

func (t *TableInfo) AbortMutation() {
	t.dirty = nil
	t.mu.Unlock()
}

// ID is a convenience accessor that does not require an explicit read lock
// round-trip for the (immutable) identifier field.
func (t *TableInfo) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.committed.ID
}

// AddTablet registers a new child tablet keyed by its partition start.
func (t *TableInfo) AddTablet(partitionKeyStart string, tl *TabletInfo) {
	t.tabletsMu.Lock()
	defer t.tabletsMu.Unlock()
	t.active[partitionKeyStart] = tl
}

// ReplaceTablet moves the old tablet to the inactive set and installs the
// replacement in the active set at the same partition key (§4.6 overdue
// CREATING tablets are cloned into a replacement).
func (t *TableInfo) ReplaceTablet(partitionKeyStart string, oldTablet, newTablet *TabletInfo) {
	t.tabletsMu.Lock()
	defer t.tabletsMu.Unlock()
	t.inactive[oldTablet.ID()] = oldTablet
	t.active[partitionKeyStart] = newTablet
}

// HideTablet moves an active tablet to the inactive set without replacing
// it (used by the delete/hide path).
func (t *TableInfo) HideTablet(partitionKeyStart string) {
	t.tabletsMu.Lock()
	defer t.tabletsMu.Unlock()
	if tl, ok := t.active[partitionKeyStart]; ok {
		t.inactive[tl.ID()] = tl
		delete(t.active, partitionKeyStart)
	}
}

// GetTablets returns the table's tablets, optionally including the inactive
// (hidden/split-parent/replaced) set, sorted by partition_key_start.
func (t *TableInfo) GetTablets(includeInactive bool) []*TabletInfo {
	t.tabletsMu.RLock()
	defer t.tabletsMu.RUnlock()

	keys := make([]string, 0, len(t.active))
	for k := range t.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*TabletInfo, 0, len(t.active)+len(t.inactive))
	for _, k := range keys {
		out = append(out, t.active[k])
	}
	if includeInactive {
		for _, tl := range t.inactive {
			out = append(out, tl)
		}
	}
	return out
}

// GetTabletsInRange returns up to max active tablets whose partition overlaps
// [keyStart, keyEnd), in partition order (§4.1 GetTabletsInRange).
func (t *TableInfo) GetTabletsInRange(keyStart, keyEnd string, max int) []*TabletInfo {
	all := t.GetTablets(false)
	out := make([]*TabletInfo, 0, max)
	for _, tl := range all {
		p := tl.LockForRead().Partition
		if keyEnd != "" && p.PartitionKeyStart >= keyEnd {
			break
		}
		if p.PartitionKeyEnd != "" && keyStart != "" && p.PartitionKeyEnd <= keyStart {
			continue
		}
		out = append(out, tl)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// NumPartitions returns the number of active (non-hidden, non-replaced)
// tablets.
func (t *TableInfo) NumPartitions() int {
	t.tabletsMu.RLock()
	defer t.tabletsMu.RUnlock()
	return len(t.active)
}

// GetColocatedTablet returns the single shared tablet for a colocated/
// tablegroup table, if any.
func (t *TableInfo) GetColocatedTablet() *TabletInfo {
	tablets := t.GetTablets(false)
	if len(tablets) == 1 {
		return tablets[0]
	}
	return nil
}

// --- task bookkeeping (C8 integration point) ---

// AddTask registers an outstanding async task against this table so it can
// be mass-aborted on leadership loss or table deletion.
func (t *TableInfo) AddTask(h TaskHandle) {
	t.tasksMu.Lock()
	defer t.tasksMu.Unlock()
	t.tasks = append(t.tasks, h)
}

// AbortTasks cancels every outstanding task registered against this table.
func (t *TableInfo) AbortTasks() {
	t.tasksMu.Lock()
	tasks := t.tasks
	t.tasksMu.Unlock()
	for _, h := range tasks {
		h.Abort()
	}
}

// WaitTasksCompletion blocks until every currently-registered task has
// finished (successfully, permanently failed, or aborted).
func (t *TableInfo) WaitTasksCompletion() {
	t.tasksMu.Lock()
	tasks := append([]TaskHandle(nil), t.tasks...)
	t.tasksMu.Unlock()
	for _, h := range tasks {
		<-h.Done()
	}
}

// HasTasks reports whether any task of the given kind (or any task at all,
// if kind=="") is still outstanding.
func (t *TableInfo) HasTasks(kind string) bool {
	t.tasksMu.Lock()
	defer t.tasksMu.Unlock()
	for _, h := range t.tasks {
		select {
		case <-h.Done():
			continue
		default:
		}
		if kind == "" || h.Kind() == kind {
			return true
		}
	}
	return false
}

// pruneDoneTasks drops finished tasks from the bookkeeping slice; called
// opportunistically by background sweeps (C10) to bound memory.
func (t *TableInfo) pruneDoneTasks() {
	t.tasksMu.Lock()
	defer t.tasksMu.Unlock()
	live := t.tasks[:0]
	for _, h := range t.tasks {
		select {
		case <-h.Done():
		default:
			live = append(live, h)
		}
	}
	t.tasks = live
}

// IsCreateInProgress reports whether the table is still in PREPARING.
func (t *TableInfo) IsCreateInProgress() bool {
	return t.LockForRead().State == TablePreparing
}

// IsAlterInProgress reports whether the table's committed version has not
// yet caught up to the given version (§4.5 AlterTable / §8 invariant).
func (t *TableInfo) IsAlterInProgress(version uint32) bool {
	pb := t.LockForRead()
	return pb.State == TableAltering && pb.Version <= version
}

// SetCreateTableErrorStatus records a sticky create-time error visible to
// IsCreateTableDone-style queries.
func (t *TableInfo) SetCreateTableErrorStatus(code, msg string) {
	pb := t.LockForWrite()
	pb.CreateErrorStatus = &CreateTableErrorStatus{Code: code, Message: msg}
	t.Commit()
}

// GetCreateTableErrorStatus returns the sticky create-time error, if any.
func (t *TableInfo) GetCreateTableErrorStatus() *CreateTableErrorStatus {
	return t.LockForRead().CreateErrorStatus
}

// IsBackfilling reports whether any index on this table is mid-backfill.
func (t *TableInfo) IsBackfilling() bool {
	pb := t.LockForRead()
	return pb.IndexPermission == PermissionDoBackfill
}

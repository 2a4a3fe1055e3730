// Package entity holds the in-memory catalog objects: NamespaceInfo,
// TableInfo, TabletInfo, UDTypeInfo, ClusterConfig, YsqlCatalogConfig and
// Tablegroup. Every entity keeps a committed snapshot plus an optional dirty
// draft behind a per-entity mutex, following a checkout/commit discipline:
// LockForWrite -> mutate the draft -> persist -> Commit (swap) or
// AbortMutation (discard).
package entity

import (
	"sync"
	"time"
)

// DatabaseType enumerates the namespace's query-layer family.
type DatabaseType string

const (
	DatabaseCQL   DatabaseType = "CQL"
	DatabasePGSQL DatabaseType = "PGSQL"
	DatabaseRedis DatabaseType = "REDIS"
)

// NamespaceState is the closed lifecycle enum for a Namespace.
type NamespaceState string

const (
	NamespacePreparing NamespaceState = "PREPARING"
	NamespaceRunning   NamespaceState = "RUNNING"
	NamespaceFailed    NamespaceState = "FAILED"
	NamespaceDeleting  NamespaceState = "DELETING"
	NamespaceDeleted   NamespaceState = "DELETED"
)

// NamespacePB is the versioned, serializable payload for a Namespace. It is
// what gets persisted via the SysCatalog gateway (C2) and what committed/
// dirty snapshots hold.
type NamespacePB struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	DatabaseType     DatabaseType   `json:"database_type"`
	State            NamespaceState `json:"state"`
	Colocated        bool           `json:"colocated"`
	NextPgOid        uint32         `json:"next_pg_oid"`
	SourceNamespace  string         `json:"source_namespace_id,omitempty"`
	PendingTxnID     string         `json:"pending_txn_id,omitempty"`
	ColocatedTableID string         `json:"colocated_table_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Clone returns a deep copy suitable for use as a dirty draft.
func (n *NamespacePB) Clone() *NamespacePB {
	if n == nil {
		return nil
	}
	cp := *n
	return &cp
}

// NamespaceInfo is the CoW wrapper around NamespacePB (§3, §4.1).
type NamespaceInfo struct {
	mu        sync.RWMutex
	committed *NamespacePB
	dirty     *NamespacePB
}

// NewNamespaceInfo wraps a freshly-allocated namespace payload.
func NewNamespaceInfo(pb *NamespacePB) *NamespaceInfo {
	return &NamespaceInfo{committed: pb}
}

// LockForRead returns the committed payload. Callers must treat it as
// read-only; it may be read concurrently with other readers and with a
// writer that has not yet committed.
func (ni *NamespaceInfo) LockForRead() *NamespacePB {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	return ni.committed
}

// LockForWrite starts a mutation: it clones the committed payload into a
// dirty draft and returns it for in-place modification. Per §4.1, this can
// only fail on resource exhaustion; in this implementation cloning a struct
// cannot fail, so no error is returned, matching the entity's role as an
// in-memory object (the fallible part is the persistence call the caller
// makes before Commit).
func (ni *NamespaceInfo) LockForWrite() *NamespacePB {
	ni.mu.Lock()
	ni.dirty = ni.committed.Clone()
	return ni.dirty
}

// Commit swaps the dirty draft into committed and releases the write lock.
// Persistence must already have succeeded by the time Commit is called.
func (ni *NamespaceInfo) Commit() {
	ni.committed = ni.dirty
	ni.dirty = nil
	ni.mu.Unlock()
}

// AbortMutation discards the dirty draft and releases the write lock.
func (ni *NamespaceInfo) AbortMutation() {
	ni.dirty = nil
	ni.mu.Unlock()
}

// EntityKind names the SysCatalog bucket a NamespacePB is stored under.
func (n *NamespacePB) EntityKind() string { return "namespaces" }

// EntityID is the namespace's catalog id, used as the SysCatalog row key.
func (n *NamespacePB) EntityID() string { return n.ID }

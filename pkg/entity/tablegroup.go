package entity

import "sync"

// TablegroupPB is the versioned serializable Tablegroup payload (§3). A
// tablegroup is modeled as metadata carried alongside its parent table
// (TablePB.TablegroupID); this struct is the catalog-level index entry used
// by CreateTablegroup/DeleteTablegroup/ListTablegroups (§4.5).
type TablegroupPB struct {
	ID             string   `json:"id"`
	NamespaceID    string   `json:"namespace_id"`
	ChildTableIDs  []string `json:"child_table_ids"`
	ParentTabletID string   `json:"parent_tablet_id"`
}

// EntityKind names the SysCatalog bucket a TablegroupPB is stored under.
func (t *TablegroupPB) EntityKind() string { return "tablegroups" }

// EntityID is the tablegroup's catalog id, used as the SysCatalog row key.
func (t *TablegroupPB) EntityID() string { return t.ID }

func (t *TablegroupPB) Clone() *TablegroupPB {
	if t == nil {
		return nil
	}
	cp := *t
	cp.ChildTableIDs = append([]string(nil), t.ChildTableIDs...)
	return &cp
}

// Tablegroup is the CoW wrapper around TablegroupPB.
type Tablegroup struct {
	mu        sync.RWMutex
	committed *TablegroupPB
	dirty     *TablegroupPB
}

func NewTablegroup(pb *TablegroupPB) *Tablegroup { return &Tablegroup{committed: pb} }

func (t *Tablegroup) LockForRead() *TablegroupPB {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.committed
}

func (t *Tablegroup) LockForWrite() *TablegroupPB {
	t.mu.Lock()
	t.dirty = t.committed.Clone()
	return t.dirty
}

func (t *Tablegroup) Commit()        { t.committed = t.dirty; t.dirty = nil; t.mu.Unlock() }
func (t *Tablegroup) AbortMutation() { t.dirty = nil; t.mu.Unlock() }

// AddChildTable appends a table id to the tablegroup's member list.
func (t *Tablegroup) AddChildTable(tableID string) {
	pb := t.LockForWrite()
	pb.ChildTableIDs = append(pb.ChildTableIDs, tableID)
	t.Commit()
}

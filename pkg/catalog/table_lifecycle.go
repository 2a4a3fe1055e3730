package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/syscatalog"
)

// TruncateTable sends AsyncTruncate to every tablet, cascading to indexes
// except for PGSQL tables (where the query layer handles cascade), per
// §4.5.
func (m *Manager) TruncateTable(tableID string) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	info, ok := m.tablesByID[tableID]
	if !ok {
		return catalogerr.New(catalogerr.ObjectNotFound, "table %s not found", tableID)
	}
	pb := info.LockForRead()

	for _, tl := range info.GetTablets(false) {
		m.scheduleTruncate(tl)
	}

	if pb.TableType == entity.DatabasePGSQL {
		return nil
	}
	for _, idx := range pb.Indexes {
		if idxInfo, ok := m.tablesByID[idx.TableID]; ok {
			for _, tl := range idxInfo.GetTablets(false) {
				m.scheduleTruncate(tl)
			}
		}
	}
	return nil
}

// DeleteTable implements the 6-step cascade of §4.5. If the argument is an
// index and backfill is enabled, it instead enters the multi-stage
// WRITE_AND_DELETE_WHILE_REMOVING path.
func (m *Manager) DeleteTable(tableID string) (err error) {
	defer recordDDLMetrics("delete_table", metrics.NewTimer(), &err)

	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	return m.deleteTableLocked(tableID)
}

func (m *Manager) deleteTableLocked(tableID string) error {
	info, ok := m.tablesByID[tableID]
	if !ok {
		return catalogerr.New(catalogerr.ObjectNotFound, "table %s not found", tableID)
	}
	pb := info.LockForRead()

	if pb.IndexedTableID != "" && pb.RetainDeleteMarkers && pb.IndexPermission != entity.PermissionWriteAndDeleteWhileRemoving {
		return m.beginIndexRemoval(info, pb.IndexedTableID)
	}

	// Step 1: retaining-snapshot-schedule check is left to a future
	// snapshot-schedule subsystem; none is modeled here, so no tablet is
	// ever retained for that reason.
	retained := false

	// Step 2: descend into indexes, removing each index entry from the
	// indexed table's schema and bumping its version.
	if pb.IndexedTableID == "" {
		for _, idx := range pb.Indexes {
			if err := m.removeIndexInfoFromTable(idx.TableID, tableID); err != nil {
				return err
			}
			if err := m.deleteTableLocked(idx.TableID); err != nil {
				return err
			}
		}
	}

	// Step 3: set DELETING (or HIDING if retained), persist with a DDL-log
	// entry.
	draft := info.LockForWrite()
	if retained {
		draft.HideState = entity.HideHiding
	} else {
		draft.State = entity.TableDeleting
	}
	term := m.CurrentTerm()
	if err := m.gw.Upsert(term, draft); err != nil {
		info.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist table deletion")
	}
	info.Commit()

	entry := syscatalog.DDLLogEntry{TableID: tableID, Action: "DELETE_TABLE", Detail: string(draft.State)}
	if err := m.gw.AppendDdlLog(term, entry); err != nil {
		return catalogerr.Wrap(catalogerr.IllegalState, err, "record delete-table ddl log")
	}

	// Step 4: remove from by-name map (unless PGSQL or already hidden).
	if !retained && draft.TableType != entity.DatabasePGSQL {
		delete(m.tableNames, draft.NamespaceID+"/"+draft.Name)
	}

	// Step 5: fan out AsyncDeleteReplica to every replica.
	for _, tl := range info.GetTablets(false) {
		m.scheduleDeleteReplica(tl, retained)
		if retained {
			tlDraft := tl.LockForWrite()
			tlDraft.HideHybridTime = time.Now().UnixNano()
			if err := m.gw.Upsert(term, tlDraft); err != nil {
				tl.AbortMutation()
				return catalogerr.Wrap(catalogerr.IllegalState, err, "persist tablet hide time")
			}
			tl.Commit()
		}
	}

	// Step 6: the actual DELETING->DELETED / HIDING->HIDDEN transition is
	// driven by the background sweep (C10 CleanUpDeletedTables), not here.

	return nil
}

// MaybeTransitionTableToDeleted implements §4.10's deleted-table sweep for
// one table: DELETING flips to DELETED once every tablet is DELETED and no
// task remains outstanding; HIDING flips to HIDDEN the same way. Returns
// true if a transition happened. Called under catalogMu by pkg/background's
// periodic pass, which holds no table lock of its own across the call.
func (m *Manager) MaybeTransitionTableToDeleted(tableID string) (bool, error) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	info, ok := m.tablesByID[tableID]
	if !ok {
		return false, nil
	}
	pb := info.LockForRead()
	if pb.State != entity.TableDeleting && pb.HideState != entity.HideHiding {
		return false, nil
	}
	if info.HasTasks("") {
		return false, nil
	}
	for _, tl := range info.GetTablets(false) {
		if tl.LockForRead().State != entity.TabletDeleted {
			return false, nil
		}
	}

	draft := info.LockForWrite()
	if draft.HideState == entity.HideHiding {
		draft.HideState = entity.HideHidden
	} else {
		draft.State = entity.TableDeleted
	}
	term := m.CurrentTerm()
	if err := m.gw.Upsert(term, draft); err != nil {
		info.AbortMutation()
		return false, catalogerr.Wrap(catalogerr.IllegalState, err, "persist table %s final deletion state", tableID)
	}
	info.Commit()
	return true, nil
}

// PurgeDeletedTable permanently removes a DELETED table and its tablets
// from both the in-memory identity maps and the durable SysCatalog, once
// any retention window the caller enforces has elapsed. It is the only
// place a table ever truly disappears rather than transitioning state.
func (m *Manager) PurgeDeletedTable(tableID string) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	info, ok := m.tablesByID[tableID]
	if !ok {
		return nil
	}
	pb := info.LockForRead()
	if pb.State != entity.TableDeleted {
		return catalogerr.New(catalogerr.IllegalState, "table %s is not DELETED", tableID)
	}

	tablets := info.GetTablets(true)
	entities := make([]syscatalog.Entity, 0, 1+len(tablets))
	entities = append(entities, pb)
	for _, tl := range tablets {
		entities = append(entities, tl.LockForRead())
		delete(m.tabletMap, tl.ID())
	}
	if err := m.gw.Delete(m.CurrentTerm(), entities...); err != nil {
		return catalogerr.Wrap(catalogerr.IllegalState, err, "purge table %s", tableID)
	}

	delete(m.tablesByID, tableID)
	delete(m.tableNames, pb.NamespaceID+"/"+pb.Name)
	return nil
}

// DeletedTableIDs returns the ids of every table currently DELETING,
// HIDING, or DELETED — the working set pkg/background's deleted-table
// sweep iterates each pass.
func (m *Manager) DeletedTableIDs() []string {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	var out []string
	for id, t := range m.tablesByID {
		pb := t.LockForRead()
		if pb.State == entity.TableDeleting || pb.State == entity.TableDeleted || pb.HideState == entity.HideHiding {
			out = append(out, id)
		}
	}
	return out
}

// beginIndexRemoval implements the multi-stage index-deletion path: set the
// index to WRITE_AND_DELETE_WHILE_REMOVING and schedule AsyncAlterTable;
// FinishIndexDeletion completes the actual deletion. No background pass
// calls FinishIndexDeletion; it runs only when a caller invokes it.
func (m *Manager) beginIndexRemoval(indexInfo *entity.TableInfo, indexedTableID string) error {
	draft := indexInfo.LockForWrite()
	draft.IndexPermission = entity.PermissionWriteAndDeleteWhileRemoving
	draft.State = entity.TableAltering
	if err := m.gw.Upsert(m.CurrentTerm(), draft); err != nil {
		indexInfo.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist index removal permission")
	}
	indexInfo.Commit()

	for _, tl := range indexInfo.GetTablets(false) {
		m.scheduleAlterTable(indexInfo, tl)
	}
	return nil
}

// FinishIndexDeletion completes the multi-stage index-deletion path once
// the WRITE_AND_DELETE_WHILE_REMOVING permission has rolled out to every
// tablet (checked by the caller; no background sweep calls it).
func (m *Manager) FinishIndexDeletion(indexTableID string) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	return m.deleteTableLocked(indexTableID)
}

func (m *Manager) removeIndexInfoFromTable(indexTableID, indexedTableID string) error {
	indexed, ok := m.tablesByID[indexedTableID]
	if !ok {
		return nil
	}
	draft := indexed.LockForWrite()
	kept := draft.Indexes[:0]
	for _, idx := range draft.Indexes {
		if idx.TableID != indexTableID {
			kept = append(kept, idx)
		}
	}
	draft.Indexes = kept
	draft.Version++
	if err := m.gw.Upsert(m.CurrentTerm(), draft); err != nil {
		indexed.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist index removal from %s", indexedTableID)
	}
	indexed.Commit()
	return nil
}

// --- Tablegroups (§4.5: wrap CreateTable/DeleteTable of a parent table) ---

// CreateTablegroupRequest is the input of CreateTablegroup.
type CreateTablegroupRequest struct {
	NamespaceID string
}

// CreateTablegroup allocates a tablegroup id and its parent colocated table.
func (m *Manager) CreateTablegroup(req CreateTablegroupRequest) (string, error) {
	tgID := uuid.NewString()
	_, err := m.CreateTable(CreateTableRequest{
		Name:        "tablegroup.parent." + tgID,
		NamespaceID: req.NamespaceID,
		Tablegroup:  tgID,
		Schema:      &entity.Schema{NextColumnID: 1},
	})
	if err != nil {
		return "", err
	}
	return tgID, nil
}

// DeleteTablegroup deletes every child table of a tablegroup, then drops
// the tablegroup index entry itself.
func (m *Manager) DeleteTablegroup(tablegroupID string) error {
	m.catalogMu.Lock()
	tg, ok := m.tablegroupsByID[tablegroupID]
	if !ok {
		m.catalogMu.Unlock()
		return catalogerr.New(catalogerr.ObjectNotFound, "tablegroup %s not found", tablegroupID)
	}
	childIDs := append([]string(nil), tg.LockForRead().ChildTableIDs...)
	m.catalogMu.Unlock()

	for _, tid := range childIDs {
		if err := m.DeleteTable(tid); err != nil {
			return err
		}
	}

	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	delete(m.tablegroupsByID, tablegroupID)
	return m.gw.Delete(m.CurrentTerm(), tg.LockForRead())
}

// ListTablegroups returns every known tablegroup in the given namespace (or
// every tablegroup, if namespaceID is empty).
func (m *Manager) ListTablegroups(namespaceID string) []*entity.TablegroupPB {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	var out []*entity.TablegroupPB
	for _, tg := range m.tablegroupsByID {
		pb := tg.LockForRead()
		if namespaceID == "" || pb.NamespaceID == namespaceID {
			out = append(out, pb)
		}
	}
	return out
}

// --- User-defined types (§4.5: standard entity CRUD) ---

// CreateUDTypeRequest is the input of CreateUDType.
type CreateUDTypeRequest struct {
	Name        string
	NamespaceID string
	FieldNames  []string
	FieldTypes  []string
}

// CreateUDType allocates and persists a new user-defined type.
func (m *Manager) CreateUDType(req CreateUDTypeRequest) (*entity.UDTypeInfo, error) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	for _, u := range m.udtypesByID {
		pb := u.LockForRead()
		if pb.NamespaceID == req.NamespaceID && pb.Name == req.Name {
			return nil, catalogerr.AlreadyPresentWithID(pb.ID, "user-defined type %q already exists", req.Name)
		}
	}

	pb := &entity.UDTypePB{
		ID:          uuid.NewString(),
		Name:        req.Name,
		NamespaceID: req.NamespaceID,
		FieldNames:  req.FieldNames,
		FieldTypes:  req.FieldTypes,
	}
	if err := m.gw.Upsert(m.CurrentTerm(), pb); err != nil {
		return nil, catalogerr.Wrap(catalogerr.IllegalState, err, "persist user-defined type %s", req.Name)
	}
	info := entity.NewUDTypeInfo(pb)
	m.udtypesByID[pb.ID] = info
	return info, nil
}

// DeleteUDType rejects deletion if any non-deleted table column or any
// other UDT still references this type.
func (m *Manager) DeleteUDType(typeID string) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	info, ok := m.udtypesByID[typeID]
	if !ok {
		return catalogerr.New(catalogerr.ObjectNotFound, "user-defined type %s not found", typeID)
	}

	for _, t := range m.tablesByID {
		pb := t.LockForRead()
		if pb.State == entity.TableDeleted {
			continue
		}
		for _, c := range pb.Schema.Columns {
			if c.DataType == typeID {
				return catalogerr.New(catalogerr.IllegalState, "type %s is used by table %s", typeID, pb.ID)
			}
		}
	}
	for id, u := range m.udtypesByID {
		if id == typeID {
			continue
		}
		if u.ReferencesType(typeID) {
			return catalogerr.New(catalogerr.IllegalState, "type %s is embedded by type %s", typeID, id)
		}
	}

	if err := m.gw.Delete(m.CurrentTerm(), info.LockForRead()); err != nil {
		return catalogerr.Wrap(catalogerr.IllegalState, err, "delete user-defined type %s", typeID)
	}
	delete(m.udtypesByID, typeID)
	return nil
}

// --- Backfill (§4.5) ---

// BackfillIndex is invoked by YSQL on an index currently at WRITE_AND_DELETE
// permission; it advances the index straight to DO_BACKFILL (YSQL drives
// the backfill job itself and reports completion out of band).
func (m *Manager) BackfillIndex(indexTableID string) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	idx, ok := m.tablesByID[indexTableID]
	if !ok {
		return catalogerr.New(catalogerr.ObjectNotFound, "index table %s not found", indexTableID)
	}
	if idx.LockForRead().IndexPermission != entity.PermissionWriteAndDelete {
		return catalogerr.New(catalogerr.IllegalState, "index %s is not at WRITE_AND_DELETE", indexTableID)
	}
	return m.setIndexPermission(idx, entity.PermissionDoBackfill)
}

// LaunchBackfillIndexForTable advances an index's permission state machine
// one step: DELETE_ONLY -> WRITE_AND_DELETE -> DO_BACKFILL ->
// READ_WRITE_AND_DELETE, the path YCQL drives entirely server-side.
func (m *Manager) LaunchBackfillIndexForTable(indexTableID string) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	idx, ok := m.tablesByID[indexTableID]
	if !ok {
		return catalogerr.New(catalogerr.ObjectNotFound, "index table %s not found", indexTableID)
	}

	var next entity.IndexPermission
	switch idx.LockForRead().IndexPermission {
	case entity.PermissionDeleteOnly:
		next = entity.PermissionWriteAndDelete
	case entity.PermissionWriteAndDelete:
		next = entity.PermissionDoBackfill
	case entity.PermissionDoBackfill:
		next = entity.PermissionReadWriteAndDelete
	default:
		return catalogerr.New(catalogerr.IllegalState, "index %s has no further backfill step", indexTableID)
	}
	return m.setIndexPermission(idx, next)
}

func (m *Manager) setIndexPermission(idx *entity.TableInfo, perm entity.IndexPermission) error {
	indexedTableID := idx.LockForRead().IndexedTableID

	draft := idx.LockForWrite()
	draft.IndexPermission = perm
	draft.State = entity.TableAltering
	if err := m.gw.Upsert(m.CurrentTerm(), draft); err != nil {
		idx.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist index permission")
	}
	idx.Commit()

	if indexed, ok := m.tablesByID[indexedTableID]; ok {
		idxID := draft.ID
		indexedDraft := indexed.LockForWrite()
		for i := range indexedDraft.Indexes {
			if indexedDraft.Indexes[i].TableID == idxID {
				indexedDraft.Indexes[i].Permission = perm
			}
		}
		if err := m.gw.Upsert(m.CurrentTerm(), indexedDraft); err != nil {
			indexed.AbortMutation()
			return catalogerr.Wrap(catalogerr.IllegalState, err, "persist indexed table permission mirror")
		}
		indexed.Commit()
	}

	for _, tl := range idx.GetTablets(false) {
		m.scheduleAlterTable(idx, tl)
	}
	return nil
}

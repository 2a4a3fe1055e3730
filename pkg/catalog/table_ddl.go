package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/syscatalog"
)

// CreateTableRequest is the input of CreateTable (§4.5).
type CreateTableRequest struct {
	Name        string
	NamespaceID string
	Schema      *entity.Schema
	PartitionKind entity.PartitionSchemaKind
	Colocated     bool
	Tablegroup    string
	NumTablets    int // explicit request; 0 means "derive"
	ShardsPerTserver int
	TserverCount     int
	ReplicationInfo  *entity.ReplicationInfo

	// IndexedTableID is set when this CreateTable call creates an index.
	IndexedTableID string
	BackfillEnabled bool

	CopartitionTableID string
	PendingTxnID        string
}

// CreateTable implements the 11-step algorithm of §4.5.
func (m *Manager) CreateTable(req CreateTableRequest) (_ *entity.TableInfo, err error) {
	defer recordDDLMetrics("create_table", metrics.NewTimer(), &err)

	// Step 1: resolve namespace, check database_type match implicitly via
	// the namespace's own type (callers pick req.NamespaceID already scoped
	// to the right database).
	m.catalogMu.Lock()
	ns, ok := m.namespacesByID[req.NamespaceID]
	if !ok {
		m.catalogMu.Unlock()
		return nil, catalogerr.New(catalogerr.ObjectNotFound, "namespace %s not found", req.NamespaceID)
	}
	nsPB := ns.LockForRead()

	// Step 2: resolve indexed table, if this is an index.
	var indexed *entity.TableInfo
	if req.IndexedTableID != "" {
		indexed, ok = m.tablesByID[req.IndexedTableID]
		if !ok {
			m.catalogMu.Unlock()
			return nil, catalogerr.New(catalogerr.ObjectNotFound, "indexed table %s not found", req.IndexedTableID)
		}
		if indexed.LockForRead().State != entity.TableRunning {
			m.catalogMu.Unlock()
			return nil, catalogerr.New(catalogerr.IllegalState, "indexed table %s is not RUNNING", req.IndexedTableID)
		}
	}

	// Step 3: derive partition schema.
	partKind := req.PartitionKind
	if req.Colocated || req.Tablegroup != "" {
		partKind = entity.PartitionSingle
	} else if partKind == "" {
		partKind = entity.PartitionHash
	}

	// Step 4: resolve replication info (table override > cluster default).
	repl := req.ReplicationInfo
	if repl == nil {
		cc := m.clusterConfig.LockForRead()
		repl = &entity.ReplicationInfo{LiveReplicas: cc.ReplicationInfo.LiveReplicas}
	}
	if repl.LiveReplicas.NumReplicas <= 0 {
		m.catalogMu.Unlock()
		return nil, catalogerr.New(catalogerr.InvalidReplicationInfo, "replication factor must be positive")
	}

	// Step 5: determine num_tablets.
	numTablets := req.NumTablets
	if numTablets <= 0 && partKind != entity.PartitionSingle {
		if req.TserverCount > 0 && req.ShardsPerTserver > 0 {
			numTablets = req.TserverCount * req.ShardsPerTserver
		} else {
			numTablets = 1
		}
	}
	if partKind == entity.PartitionSingle {
		numTablets = 1
	}

	// Step 6: validate schema.
	if req.Schema == nil {
		m.catalogMu.Unlock()
		return nil, catalogerr.New(catalogerr.InvalidSchema, "schema is required")
	}
	if _, hasKey := req.Schema.KeyColumn(); !hasKey && req.IndexedTableID == "" {
		m.catalogMu.Unlock()
		return nil, catalogerr.New(catalogerr.InvalidSchema, "schema needs at least one key column")
	}
	if req.Colocated {
		for i := range req.Schema.Columns {
			req.Schema.Columns[i].IsHash = false
		}
	}

	// Step 7: name-collision check and TableInfo creation under catalog lock.
	nameKey := req.NamespaceID + "/" + req.Name
	isPgSQL := nsPB.DatabaseType == entity.DatabasePGSQL
	if !isPgSQL {
		if existing, exists := m.tableNames[nameKey]; exists {
			m.catalogMu.Unlock()
			return nil, catalogerr.AlreadyPresentWithID(existing.ID(), "table %q already exists in namespace", req.Name)
		}
	}

	pb := &entity.TablePB{
		ID:              uuid.NewString(),
		Name:            req.Name,
		NamespaceID:     req.NamespaceID,
		TableType:       nsPB.DatabaseType,
		Schema:          req.Schema,
		PartitionSchema: entity.PartitionSchema{Kind: partKind},
		ReplicationInfo: repl,
		State:           entity.TablePreparing,
		HideState:       entity.HideVisible,
		Colocated:       req.Colocated,
		IsPgSharedTable: isPgSQL && req.Tablegroup == "" && req.Colocated && nsPB.Name == "template1",
		TablegroupID:       req.Tablegroup,
		IndexedTableID:     req.IndexedTableID,
		CopartitionTableID: req.CopartitionTableID,
		PendingTxnID:       req.PendingTxnID,
		RetainDeleteMarkers: req.IndexedTableID != "" && req.BackfillEnabled,
		CreatedAt:          time.Now(),
	}
	if req.IndexedTableID != "" {
		pb.IndexPermission = entity.PermissionDeleteOnly
	}

	info := entity.NewTableInfo(pb)
	m.tablesByID[pb.ID] = info
	if !isPgSQL {
		m.tableNames[nameKey] = info
	}

	// Step 8: create tablets.
	var tablets []*entity.TabletInfo
	term := m.CurrentTerm()

	if partKind == entity.PartitionSingle {
		parent := m.resolveParentTablet(req)
		if parent != nil {
			info.AddTablet("", parent)
			tablets = append(tablets, parent)
		} else {
			tl := newTabletPB(pb.ID, "", "")
			tlInfo := entity.NewTabletInfo(tl)
			info.AddTablet("", tlInfo)
			tablets = append(tablets, tlInfo)
		}
	} else if req.CopartitionTableID != "" {
		if parent, ok := m.tablesByID[req.CopartitionTableID]; ok {
			for _, src := range parent.GetTablets(false) {
				srcPB := src.LockForRead()
				tl := newTabletPB(pb.ID, srcPB.Partition.PartitionKeyStart, srcPB.Partition.PartitionKeyEnd)
				tlInfo := entity.NewTabletInfo(tl)
				info.AddTablet(srcPB.Partition.PartitionKeyStart, tlInfo)
				tablets = append(tablets, tlInfo)
			}
		}
	} else {
		bounds := hashPartitionBounds(numTablets)
		for i := 0; i < numTablets; i++ {
			tl := newTabletPB(pb.ID, bounds[i], bounds[i+1])
			tlInfo := entity.NewTabletInfo(tl)
			info.AddTablet(bounds[i], tlInfo)
			tablets = append(tablets, tlInfo)
		}
	}

	// Step 9: persist table+tablets via one Upsert; move to RUNNING.
	upsertArgs := make([]syscatalog.Entity, 0, len(tablets)+1)
	upsertArgs = append(upsertArgs, pb)
	for _, tl := range tablets {
		upsertArgs = append(upsertArgs, tl.LockForRead())
	}
	if err := m.gw.Upsert(term, upsertArgs...); err != nil {
		delete(m.tablesByID, pb.ID)
		delete(m.tableNames, nameKey)
		m.catalogMu.Unlock()
		return nil, catalogerr.Wrap(catalogerr.IllegalState, err, "persist table %s", req.Name)
	}

	draft := info.LockForWrite()
	draft.State = entity.TableRunning
	if err := m.gw.Upsert(term, draft); err != nil {
		info.AbortMutation()
		m.catalogMu.Unlock()
		return nil, catalogerr.Wrap(catalogerr.IllegalState, err, "commit table %s", req.Name)
	}
	info.Commit()

	if req.Tablegroup != "" {
		tg, ok := m.tablegroupsByID[req.Tablegroup]
		if !ok {
			tg = entity.NewTablegroup(&entity.TablegroupPB{ID: req.Tablegroup, NamespaceID: req.NamespaceID})
			m.tablegroupsByID[req.Tablegroup] = tg
		}
		tg.AddChildTable(pb.ID)
	}
	m.catalogMu.Unlock()

	// Step 10: for indexes, bump the indexed table's version and fan out
	// AsyncAlterTable.
	if indexed != nil {
		if err := m.addIndexInfoToTable(indexed, pb.ID); err != nil {
			return info, err
		}
	}

	// Step 11: pending-transaction verifier is left to the caller (the
	// transaction coordinator records the id; this layer exposes no
	// verification hook of its own beyond the persisted pending_txn_id).

	return info, nil
}

// resolveParentTablet finds the existing colocated/tablegroup parent tablet
// new singly-partitioned tables should attach to, or nil if none exists yet
// (the first table in a colocated database/tablegroup creates its own).
func (m *Manager) resolveParentTablet(req CreateTableRequest) *entity.TabletInfo {
	if req.Tablegroup != "" {
		if tg, ok := m.tablegroupsByID[req.Tablegroup]; ok {
			for _, tid := range tg.LockForRead().ChildTableIDs {
				if t, ok := m.tablesByID[tid]; ok {
					if tl := t.GetColocatedTablet(); tl != nil {
						return tl
					}
				}
			}
		}
		return nil
	}
	if req.Colocated {
		for _, t := range m.tablesByID {
			pb := t.LockForRead()
			if pb.NamespaceID == req.NamespaceID && pb.Colocated {
				if tl := t.GetColocatedTablet(); tl != nil {
					return tl
				}
			}
		}
	}
	return nil
}

func newTabletPB(tableID, start, end string) *entity.TabletPB {
	return &entity.TabletPB{
		ID:      uuid.NewString(),
		TableID: tableID,
		Partition: entity.Partition{
			PartitionKeyStart: start,
			PartitionKeyEnd:   end,
		},
		State:             entity.TabletPreparing,
		ReplicaLocations:  make(map[string]entity.Replica),
		CreatingStartedAt: time.Now(),
	}
}

// hashPartitionBounds splits the hash-key space into n contiguous ranges,
// returning n+1 boundary keys (bounds[i], bounds[i+1]) per tablet. Boundary
// keys are hex-encoded to sort lexically the same way numerically.
func hashPartitionBounds(n int) []string {
	if n <= 0 {
		n = 1
	}
	const space = uint32(1) << 31
	bounds := make([]string, n+1)
	bounds[0] = ""
	for i := 1; i < n; i++ {
		bounds[i] = encodeHashBound(uint32(uint64(i) * uint64(space) / uint64(n)))
	}
	bounds[n] = ""
	return bounds
}

func encodeHashBound(v uint32) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b)
}

// addIndexInfoToTable implements §4.5 step 10: record the new index on the
// indexed table, bump its version, move it to ALTERING, and fan out
// AsyncAlterTable to every tablet.
func (m *Manager) addIndexInfoToTable(indexed *entity.TableInfo, indexTableID string) error {
	draft := indexed.LockForWrite()
	draft.Indexes = append(draft.Indexes, entity.IndexInfo{TableID: indexTableID, Permission: entity.PermissionDeleteOnly})
	draft.Version++
	draft.State = entity.TableAltering
	if draft.FullyAppliedSchema == nil {
		draft.FullyAppliedSchema = draft.Schema.Clone()
	}

	term := m.CurrentTerm()
	if err := m.gw.Upsert(term, draft); err != nil {
		indexed.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist index info on %s", indexed.ID())
	}
	indexed.Commit()

	for _, tl := range indexed.GetTablets(false) {
		m.scheduleAlterTable(indexed, tl)
	}
	return nil
}

// AlterStepKind enumerates one schema-mutation op in an AlterTableRequest.
type AlterStepKind string

const (
	AlterAddColumn    AlterStepKind = "ADD_COLUMN"
	AlterDropColumn   AlterStepKind = "DROP_COLUMN"
	AlterRenameColumn AlterStepKind = "RENAME_COLUMN"
)

// AlterStep is one SchemaBuilder operation.
type AlterStep struct {
	Kind     AlterStepKind
	Column   entity.Column // used by ADD_COLUMN
	Name     string        // column name, for DROP/RENAME
	NewName  string        // used by RENAME_COLUMN
}

// AlterTableRequest is the input of AlterTable (§4.5).
type AlterTableRequest struct {
	TableID            string
	Steps              []AlterStep
	NewName            string // non-empty for a rename/move
	NewNamespaceID      string // non-empty moves to a different namespace
	WalRetentionSecs   *int64
	ReplicationInfo    *entity.ReplicationInfo
}

// AlterTable builds a new schema from req.Steps on a SchemaBuilder seeded
// with the table's current next_column_id, then persists and fans out
// AsyncAlterTable, per §4.5.
func (m *Manager) AlterTable(req AlterTableRequest) (err error) {
	defer recordDDLMetrics("alter_table", metrics.NewTimer(), &err)

	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	info, ok := m.tablesByID[req.TableID]
	if !ok {
		return catalogerr.New(catalogerr.ObjectNotFound, "table %s not found", req.TableID)
	}

	current := info.LockForRead()
	schema := current.Schema.Clone()

	for _, step := range req.Steps {
		switch step.Kind {
		case AlterAddColumn:
			col := step.Column
			col.ID = schema.NextColumnID
			schema.NextColumnID++
			schema.Columns = append(schema.Columns, col)
		case AlterDropColumn:
			idx := -1
			for i, c := range schema.Columns {
				if c.Name == step.Name {
					if c.IsKey {
						return catalogerr.New(catalogerr.InvalidSchema, "cannot drop key column %s", step.Name)
					}
					idx = i
					break
				}
			}
			if idx < 0 {
				return catalogerr.New(catalogerr.ObjectNotFound, "column %s not found", step.Name)
			}
			schema.Columns = append(schema.Columns[:idx], schema.Columns[idx+1:]...)
		case AlterRenameColumn:
			found := false
			for i := range schema.Columns {
				if schema.Columns[i].Name == step.Name {
					schema.Columns[i].Name = step.NewName
					found = true
					break
				}
			}
			if !found {
				return catalogerr.New(catalogerr.ObjectNotFound, "column %s not found", step.Name)
			}
		default:
			return catalogerr.New(catalogerr.InvalidArgument, "unknown alter step %q", step.Kind)
		}

		entry := syscatalog.DDLLogEntry{TableID: req.TableID, Action: string(step.Kind), Detail: step.Name}
		if err := m.gw.AppendDdlLog(m.CurrentTerm(), entry); err != nil {
			return catalogerr.Wrap(catalogerr.IllegalState, err, "record alter step")
		}
	}

	nameMoved := req.NewName != "" && current.TableType != entity.DatabasePGSQL
	newNsID := current.NamespaceID
	if req.NewNamespaceID != "" {
		newNsID = req.NewNamespaceID
	}
	var newKey, oldKey string
	if nameMoved {
		newKey = newNsID + "/" + req.NewName
		oldKey = current.NamespaceID + "/" + current.Name
		if _, exists := m.tableNames[newKey]; exists {
			return catalogerr.New(catalogerr.AlreadyPresent, "table %q already exists in target namespace", req.NewName)
		}
	}

	draft := info.LockForWrite()
	draft.Schema = schema
	if draft.FullyAppliedSchema == nil {
		draft.FullyAppliedSchema = current.Schema.Clone()
	}
	if nameMoved {
		draft.Name = req.NewName
		draft.NamespaceID = newNsID
	}
	if req.WalRetentionSecs != nil {
		draft.WalRetentionSecs = *req.WalRetentionSecs
	}
	if req.ReplicationInfo != nil {
		draft.ReplicationInfo = req.ReplicationInfo
	}
	draft.Version++
	draft.State = entity.TableAltering

	if err := m.gw.Upsert(m.CurrentTerm(), draft); err != nil {
		info.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist altered table")
	}
	info.Commit()

	if nameMoved {
		delete(m.tableNames, oldKey)
		m.tableNames[newKey] = info
	}

	for _, tl := range info.GetTablets(false) {
		m.scheduleAlterTable(info, tl)
	}
	return nil
}

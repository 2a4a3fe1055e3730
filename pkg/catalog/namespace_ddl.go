package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/metrics"
)

// CreateNamespaceRequest is the input of CreateNamespace (§4.5).
type CreateNamespaceRequest struct {
	Name             string
	DatabaseType     entity.DatabaseType
	Colocated        bool
	SourceNamespaceID string // set for CREATE DATABASE ... TEMPLATE clone
}

// CreateNamespace validates, allocates an id, and persists a new namespace
// in PREPARING before committing it to RUNNING, per §4.5.
func (m *Manager) CreateNamespace(req CreateNamespaceRequest) (_ *entity.NamespaceInfo, err error) {
	defer recordDDLMetrics("create_namespace", metrics.NewTimer(), &err)

	if req.Name == "" {
		return nil, catalogerr.New(catalogerr.InvalidArgument, "namespace name is required")
	}

	m.catalogMu.Lock()
	if _, exists := m.namespacesByName[req.Name]; exists {
		existing := m.namespacesByName[req.Name].LockForRead().ID
		m.catalogMu.Unlock()
		return nil, catalogerr.AlreadyPresentWithID(existing, "namespace %q already exists", req.Name)
	}

	pb := &entity.NamespacePB{
		ID:           uuid.NewString(),
		Name:         req.Name,
		DatabaseType: req.DatabaseType,
		Colocated:    req.Colocated,
		State:        entity.NamespacePreparing,
	}
	if req.DatabaseType == entity.DatabasePGSQL {
		pb.NextPgOid = 16384 // first OID above PostgreSQL's reserved range
	}
	info := entity.NewNamespaceInfo(pb)
	m.namespacesByID[pb.ID] = info
	m.namespacesByName[pb.Name] = info
	m.catalogMu.Unlock()

	term := m.CurrentTerm()
	if err := m.gw.Upsert(term, pb); err != nil {
		m.abortNamespaceCreation(pb.ID, pb.Name)
		return nil, catalogerr.Wrap(catalogerr.IllegalState, err, "persist namespace %s", req.Name)
	}

	if req.SourceNamespaceID != "" {
		if err := m.cloneNamespaceTables(term, req.SourceNamespaceID, pb.ID); err != nil {
			m.abortNamespaceCreation(pb.ID, pb.Name)
			return nil, err
		}
	}

	if req.Colocated {
		if err := m.createColocatedParentTable(pb.ID); err != nil {
			m.abortNamespaceCreation(pb.ID, pb.Name)
			return nil, err
		}
	}

	draft := info.LockForWrite()
	draft.State = entity.NamespaceRunning
	if err := m.gw.Upsert(term, draft); err != nil {
		info.AbortMutation()
		return nil, catalogerr.Wrap(catalogerr.IllegalState, err, "commit namespace %s", req.Name)
	}
	info.Commit()

	return info, nil
}

func (m *Manager) abortNamespaceCreation(id, name string) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	delete(m.namespacesByID, id)
	delete(m.namespacesByName, name)
}

func (m *Manager) cloneNamespaceTables(term int64, srcNamespaceID, dstNamespaceID string) error {
	var srcIDs, dstIDs []string
	for _, t := range m.tablesByID {
		pb := t.LockForRead()
		if pb.NamespaceID != srcNamespaceID {
			continue
		}
		srcIDs = append(srcIDs, pb.ID)
		dstIDs = append(dstIDs, uuid.NewString())
	}
	if len(srcIDs) == 0 {
		return nil
	}
	return m.gw.CopyPgsqlTables(term, srcIDs, dstIDs)
}

// createColocatedParentTable creates the hidden parent table+tablet that
// backs a colocated database (§4.5 "colocated databases additionally create
// a parent colocated table/tablet").
func (m *Manager) createColocatedParentTable(namespaceID string) error {
	_, err := m.CreateTable(CreateTableRequest{
		Name:        "colocated.parent." + namespaceID,
		NamespaceID: namespaceID,
		Colocated:   true,
		Schema:      &entity.Schema{NextColumnID: 1},
	})
	return err
}

// AlterNamespaceRequest is the input of AlterNamespace (§4.5).
type AlterNamespaceRequest struct {
	ID      string
	NewName string
}

// AlterNamespace renames a RUNNING namespace, validating name-uniqueness
// under the catalog lock.
func (m *Manager) AlterNamespace(req AlterNamespaceRequest) (err error) {
	defer recordDDLMetrics("alter_namespace", metrics.NewTimer(), &err)

	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	info, ok := m.namespacesByID[req.ID]
	if !ok {
		return catalogerr.New(catalogerr.ObjectNotFound, "namespace %s not found", req.ID)
	}
	if info.LockForRead().State != entity.NamespaceRunning {
		return catalogerr.New(catalogerr.IllegalState, "namespace %s is not RUNNING", req.ID)
	}
	if req.NewName == "" || req.NewName == info.LockForRead().Name {
		return nil
	}
	if _, exists := m.namespacesByName[req.NewName]; exists {
		return catalogerr.New(catalogerr.AlreadyPresent, "namespace name %q already in use", req.NewName)
	}

	oldName := info.LockForRead().Name
	draft := info.LockForWrite()
	draft.Name = req.NewName
	if err := m.gw.Upsert(m.CurrentTerm(), draft); err != nil {
		info.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist namespace rename")
	}
	info.Commit()

	delete(m.namespacesByName, oldName)
	m.namespacesByName[req.NewName] = info
	return nil
}

// DeleteNamespace tears down a namespace: RUNNING or FAILED only, rejected
// if any UDT still references it or, for non-PGSQL namespaces, any live
// table does. It then runs a two-phase DELETING->DELETED transition that
// first deletes every child table (PGSQL only) and finally removes the
// namespace row and its in-memory entry, so the id no longer resolves.
func (m *Manager) DeleteNamespace(id string) (err error) {
	defer recordDDLMetrics("delete_namespace", metrics.NewTimer(), &err)

	m.catalogMu.Lock()
	info, ok := m.namespacesByID[id]
	if !ok {
		m.catalogMu.Unlock()
		return catalogerr.New(catalogerr.ObjectNotFound, "namespace %s not found", id)
	}
	state := info.LockForRead().State
	if state != entity.NamespaceRunning && state != entity.NamespaceFailed {
		m.catalogMu.Unlock()
		return catalogerr.New(catalogerr.IllegalState, "namespace %s is not RUNNING or FAILED", id)
	}

	var childTableIDs []string
	for _, t := range m.tablesByID {
		pb := t.LockForRead()
		if pb.NamespaceID == id && pb.State != entity.TableDeleted {
			if info.LockForRead().DatabaseType != entity.DatabasePGSQL {
				m.catalogMu.Unlock()
				return catalogerr.New(catalogerr.NamespaceNotEmpty, "namespace %s still has tables", id)
			}
			childTableIDs = append(childTableIDs, pb.ID)
		}
	}
	for _, u := range m.udtypesByID {
		if u.LockForRead().NamespaceID == id {
			m.catalogMu.Unlock()
			return catalogerr.New(catalogerr.NamespaceNotEmpty, "namespace %s still has user-defined types", id)
		}
	}

	draft := info.LockForWrite()
	draft.State = entity.NamespaceDeleting
	term := m.CurrentTerm()
	if err := m.gw.Upsert(term, draft); err != nil {
		info.AbortMutation()
		m.catalogMu.Unlock()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist namespace DELETING")
	}
	info.Commit()
	m.catalogMu.Unlock()

	for _, tid := range childTableIDs {
		if err := m.DeleteTable(tid); err != nil {
			return fmt.Errorf("cascade delete table %s: %w", tid, err)
		}
	}

	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	draft2 := info.LockForWrite()
	draft2.State = entity.NamespaceDeleted
	if err := m.gw.Upsert(term, draft2); err != nil {
		info.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist namespace DELETED")
	}
	info.Commit()
	if err := m.gw.Delete(term, info.LockForRead()); err != nil {
		return catalogerr.Wrap(catalogerr.IllegalState, err, "remove namespace %s", id)
	}
	delete(m.namespacesByName, draft2.Name)
	delete(m.namespacesByID, id)
	return nil
}

// ReservePgsqlOids atomically bumps a namespace's next_pg_oid by count,
// clamped at uint32 max (§4.5).
func (m *Manager) ReservePgsqlOids(namespaceID string, count uint32) (first, last uint32, err error) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	info, ok := m.namespacesByID[namespaceID]
	if !ok {
		return 0, 0, catalogerr.New(catalogerr.ObjectNotFound, "namespace %s not found", namespaceID)
	}

	draft := info.LockForWrite()
	first = draft.NextPgOid
	const maxOid = ^uint32(0)
	if maxOid-first < count {
		draft.NextPgOid = maxOid
		last = maxOid
	} else {
		draft.NextPgOid = first + count
		last = draft.NextPgOid - 1
	}
	if err := m.gw.Upsert(m.CurrentTerm(), draft); err != nil {
		info.AbortMutation()
		return 0, 0, catalogerr.Wrap(catalogerr.IllegalState, err, "persist next_pg_oid")
	}
	info.Commit()
	return first, last, nil
}

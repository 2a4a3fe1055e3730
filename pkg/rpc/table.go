package rpc

import (
	"context"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
)

// TableSummary is the wire view of one table, flattened from
// entity.TablePB.
type TableSummary struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	NamespaceID     string              `json:"namespace_id"`
	State           entity.TableState   `json:"state"`
	HideState       entity.HideState    `json:"hide_state"`
	Version         uint32              `json:"version"`
	Colocated       bool                `json:"colocated"`
	TablegroupID    string              `json:"tablegroup_id,omitempty"`
	IndexedTableID  string              `json:"indexed_table_id,omitempty"`
	IndexPermission entity.IndexPermission `json:"index_permission,omitempty"`
}

func tableSummary(t *entity.TableInfo) TableSummary {
	pb := t.LockForRead()
	return TableSummary{
		ID: pb.ID, Name: pb.Name, NamespaceID: pb.NamespaceID, State: pb.State, HideState: pb.HideState,
		Version: pb.Version, Colocated: pb.Colocated, TablegroupID: pb.TablegroupID,
		IndexedTableID: pb.IndexedTableID, IndexPermission: pb.IndexPermission,
	}
}

type CreateTableRequest struct {
	Name             string                     `json:"name"`
	NamespaceID      string                      `json:"namespace_id"`
	Schema           *entity.Schema              `json:"schema"`
	PartitionKind    entity.PartitionSchemaKind  `json:"partition_kind"`
	Colocated        bool                        `json:"colocated"`
	Tablegroup       string                      `json:"tablegroup,omitempty"`
	NumTablets       int                         `json:"num_tablets,omitempty"`
	ShardsPerTserver int                         `json:"shards_per_tserver,omitempty"`
	TserverCount     int                         `json:"tserver_count,omitempty"`
	ReplicationInfo  *entity.ReplicationInfo     `json:"replication_info,omitempty"`
	IndexedTableID   string                      `json:"indexed_table_id,omitempty"`
	BackfillEnabled  bool                        `json:"backfill_enabled,omitempty"`
}

type CreateTableResponse struct {
	Status Status `json:"status"`
	ID     string `json:"id,omitempty"`
}

func (s *Server) CreateTable(ctx context.Context, req *CreateTableRequest) (*CreateTableResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &CreateTableResponse{Status: statusFromError(err)}, nil
	}
	tbl, err := s.manager.CreateTable(catalog.CreateTableRequest{
		Name: req.Name, NamespaceID: req.NamespaceID, Schema: req.Schema, PartitionKind: req.PartitionKind,
		Colocated: req.Colocated, Tablegroup: req.Tablegroup, NumTablets: req.NumTablets,
		ShardsPerTserver: req.ShardsPerTserver, TserverCount: req.TserverCount,
		ReplicationInfo: req.ReplicationInfo, IndexedTableID: req.IndexedTableID, BackfillEnabled: req.BackfillEnabled,
	})
	if err != nil {
		return &CreateTableResponse{Status: statusFromError(err)}, nil
	}
	return &CreateTableResponse{Status: OK, ID: tbl.ID()}, nil
}

// IsCreateTableDone reports the sticky create-time failure status, if any,
// and done=true otherwise once the table is visible (CreateTable has no
// async continuation left to observe beyond replica assignment, which
// pkg/assignment drives independently of the caller's is-done poll).
func (s *Server) IsCreateTableDone(ctx context.Context, req *IsDoneRequest) (*IsDoneResponse, error) {
	tbl := s.manager.Table(req.ID)
	if tbl == nil {
		return &IsDoneResponse{Status: statusFromError(catalogerr.New(catalogerr.ObjectNotFound, "table %s not found", req.ID))}, nil
	}
	if es := tbl.GetCreateTableErrorStatus(); es != nil {
		return &IsDoneResponse{Status: Status{Code: es.Code, Message: es.Message}, Done: true}, nil
	}
	return &IsDoneResponse{Status: OK, Done: !tbl.IsCreateInProgress()}, nil
}

type AlterTableRequest struct {
	TableID          string                `json:"table_id"`
	Steps            []catalog.AlterStep   `json:"steps,omitempty"`
	NewName          string                `json:"new_name,omitempty"`
	NewNamespaceID   string                `json:"new_namespace_id,omitempty"`
	WalRetentionSecs *int64                `json:"wal_retention_secs,omitempty"`
	ReplicationInfo  *entity.ReplicationInfo `json:"replication_info,omitempty"`
}

func (s *Server) AlterTable(ctx context.Context, req *AlterTableRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.AlterTable(catalog.AlterTableRequest{
		TableID: req.TableID, Steps: req.Steps, NewName: req.NewName, NewNamespaceID: req.NewNamespaceID,
		WalRetentionSecs: req.WalRetentionSecs, ReplicationInfo: req.ReplicationInfo,
	})
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

func (s *Server) IsAlterTableDone(ctx context.Context, req *IsDoneRequest) (*IsDoneResponse, error) {
	tbl := s.manager.Table(req.ID)
	if tbl == nil {
		return &IsDoneResponse{Status: statusFromError(catalogerr.New(catalogerr.ObjectNotFound, "table %s not found", req.ID))}, nil
	}
	return &IsDoneResponse{Status: OK, Done: tbl.LockForRead().State != entity.TableAltering}, nil
}

func (s *Server) TruncateTable(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.TruncateTable(req.ID)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

// IsTruncateTableDone reports done=true unconditionally: TruncateTable
// returns only after its tablets are re-created in the catalog, leaving
// nothing further for the caller to poll (the tserver-side data wipe is
// fanned out asynchronously via ScheduleTruncate and is not observable
// from here).
func (s *Server) IsTruncateTableDone(ctx context.Context, req *IsDoneRequest) (*IsDoneResponse, error) {
	return &IsDoneResponse{Status: OK, Done: true}, nil
}

func (s *Server) DeleteTable(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.DeleteTable(req.ID)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

// IsDeleteTableDone reports done once the deleted-table GC sweep
// (pkg/background.CleanUpDeletedTables) has purged the table entirely.
func (s *Server) IsDeleteTableDone(ctx context.Context, req *IsDoneRequest) (*IsDoneResponse, error) {
	return &IsDoneResponse{Status: OK, Done: s.manager.Table(req.ID) == nil}, nil
}

type GetTableSchemaResponse struct {
	Status  Status         `json:"status"`
	Table   TableSummary   `json:"table"`
	Schema  *entity.Schema `json:"schema,omitempty"`
	Indexes []entity.IndexInfo `json:"indexes,omitempty"`
}

func (s *Server) GetTableSchema(ctx context.Context, req *IsDoneRequest) (*GetTableSchemaResponse, error) {
	tbl := s.manager.Table(req.ID)
	if tbl == nil {
		return &GetTableSchemaResponse{Status: statusFromError(catalogerr.New(catalogerr.ObjectNotFound, "table %s not found", req.ID))}, nil
	}
	pb := tbl.LockForRead()
	return &GetTableSchemaResponse{Status: OK, Table: tableSummary(tbl), Schema: pb.Schema, Indexes: pb.Indexes}, nil
}

// GetColocatedTabletSchema returns every table packed onto one colocated
// tablet. Since a colocated tablet's TableIDs list already names every
// sharing table (§3 Tablet.table_ids), this is a simple fan-out over
// GetTableSchema rather than a separate lookup path.
type GetColocatedTabletSchemaResponse struct {
	Status Status                   `json:"status"`
	Tables []GetTableSchemaResponse `json:"tables"`
}

func (s *Server) GetColocatedTabletSchema(ctx context.Context, req *IsDoneRequest) (*GetColocatedTabletSchemaResponse, error) {
	tl := s.manager.Tablet(req.ID)
	if tl == nil {
		return &GetColocatedTabletSchemaResponse{Status: statusFromError(catalogerr.New(catalogerr.ObjectNotFound, "tablet %s not found", req.ID))}, nil
	}
	pb := tl.LockForRead()
	ids := pb.TableIDs
	if len(ids) == 0 {
		ids = []string{pb.TableID}
	}
	out := make([]GetTableSchemaResponse, 0, len(ids))
	for _, id := range ids {
		resp, _ := s.GetTableSchema(ctx, &IsDoneRequest{ID: id})
		out = append(out, *resp)
	}
	return &GetColocatedTabletSchemaResponse{Status: OK, Tables: out}, nil
}

type ListTablesRequest struct {
	NamespaceID string `json:"namespace_id,omitempty"`
}

type ListTablesResponse struct {
	Status Status         `json:"status"`
	Tables []TableSummary `json:"tables"`
}

func (s *Server) ListTables(ctx context.Context, req *ListTablesRequest) (*ListTablesResponse, error) {
	all := s.manager.ListTables()
	out := make([]TableSummary, 0, len(all))
	for _, t := range all {
		if req.NamespaceID != "" && t.LockForRead().NamespaceID != req.NamespaceID {
			continue
		}
		out = append(out, tableSummary(t))
	}
	return &ListTablesResponse{Status: OK, Tables: out}, nil
}

package rpc

import (
	"context"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
)

// SplitTablet manually triggers the §4.9 split pipeline against one
// tablet. s.splitter may be nil (no split.Splitter wired for this node, as
// in a server built only against catalog-DDL tests), in which case the RPC
// reports NotSupported rather than silently no-op-ing a user-visible
// admin action.
func (s *Server) SplitTablet(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	if s.splitter == nil {
		return &StatusOnlyResponse{Status: statusFromError(catalogerr.New(catalogerr.NotSupported, "split pipeline not wired on this node"))}, nil
	}
	err := s.splitter.SplitTablet(ctx, req.ID)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

// DeleteNotServingTablet tombstones a tablet that has stopped serving
// (post-split parent, orphaned replacement): the tablet is marked DELETED
// in memory, in place rather than removed from its owning table's tablet
// set, since callers keep resolving it by id until the GC sweep purges the
// whole table. It schedules no DeleteReplica tasks itself; the heartbeat
// report processor issues those when tservers next report the tablet.
func (s *Server) DeleteNotServingTablet(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	tl := s.manager.Tablet(req.ID)
	if tl == nil {
		return &StatusOnlyResponse{Status: statusFromError(notFound("tablet", req.ID))}, nil
	}
	wpb := tl.LockForWrite()
	if wpb.State == entity.TabletDeleted {
		tl.AbortMutation()
		return &StatusOnlyResponse{Status: OK}, nil
	}
	wpb.State = entity.TabletDeleted
	tl.Commit()
	return &StatusOnlyResponse{Status: OK}, nil
}

func (s *Server) BackfillIndex(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.BackfillIndex(req.ID)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

func (s *Server) LaunchBackfillIndexForTable(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.LaunchBackfillIndexForTable(req.ID)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

// BackfillJob is one in-progress index build, derived from the indexed
// table's own IndexInfo entries rather than a separate job-tracking table
// (§4.5 models backfill progress entirely as IndexPermission on the index
// entry).
type BackfillJob struct {
	IndexTableID string                 `json:"index_table_id"`
	Permission   entity.IndexPermission `json:"permission"`
}

type GetBackfillJobsResponse struct {
	Status Status        `json:"status"`
	Jobs   []BackfillJob `json:"jobs"`
}

func (s *Server) GetBackfillJobs(ctx context.Context, req *IsDoneRequest) (*GetBackfillJobsResponse, error) {
	tbl := s.manager.Table(req.ID)
	if tbl == nil {
		return &GetBackfillJobsResponse{Status: statusFromError(notFound("table", req.ID))}, nil
	}
	pb := tbl.LockForRead()
	var jobs []BackfillJob
	for _, idx := range pb.Indexes {
		if idx.Permission != entity.PermissionReadWriteAndDelete {
			jobs = append(jobs, BackfillJob{IndexTableID: idx.TableID, Permission: idx.Permission})
		}
	}
	return &GetBackfillJobsResponse{Status: OK, Jobs: jobs}, nil
}

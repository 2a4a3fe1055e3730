package rpc

import (
	"context"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/syscatalog"
	"github.com/cuemby/warren/pkg/tserverset"
)

// DumpMasterStateResponse is a point-in-time diagnostic snapshot of the
// catalog's identity maps, the admin-surface equivalent of the teacher's
// /dump-state debug endpoint.
type DumpMasterStateResponse struct {
	Status          Status `json:"status"`
	NodeID          string `json:"node_id"`
	IsLeader        bool   `json:"is_leader"`
	LeaderAddr      string `json:"leader_addr"`
	CurrentTerm     int64  `json:"current_term"`
	NamespaceCount  int    `json:"namespace_count"`
	TableCount      int    `json:"table_count"`
	TServerCount    int    `json:"tserver_count"`
}

func (s *Server) DumpMasterState(ctx context.Context, req *struct{}) (*DumpMasterStateResponse, error) {
	resp := &DumpMasterStateResponse{
		Status:         OK,
		NodeID:         s.manager.NodeID(),
		IsLeader:       s.manager.IsLeader(),
		LeaderAddr:     s.manager.LeaderAddr(),
		CurrentTerm:    s.manager.CurrentTerm(),
		NamespaceCount: len(s.manager.ListNamespaces()),
		TableCount:     len(s.manager.ListTables()),
	}
	if s.registry != nil {
		resp.TServerCount = len(s.registry.List())
	}
	return resp, nil
}

type StartRemoteBootstrapRequest struct {
	TServerID string   `json:"tserver_id"`
	TabletID  string   `json:"tablet_id"`
	TableID   string   `json:"table_id"`
	Peers     []string `json:"peers"`
}

// StartRemoteBootstrap manually instructs one tserver to bootstrap a
// replica of an existing tablet by copying from its current peers — the
// same CreateReplica call pkg/tasks' async replica-creation path issues,
// exposed here for operator-triggered recovery rather than automatic
// placement.
func (s *Server) StartRemoteBootstrap(ctx context.Context, req *StartRemoteBootstrapRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	if s.proxy == nil {
		return &StatusOnlyResponse{Status: statusFromError(catalogerr.New(catalogerr.NotSupported, "tserver proxy not wired on this node"))}, nil
	}
	err := s.proxy.CreateReplica(ctx, tserverset.CreateReplicaRequest{
		TServerID: req.TServerID, TabletID: req.TabletID, TableID: req.TableID, Peers: req.Peers,
	})
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

type DdlLogRequest struct {
	SinceSeq uint64 `json:"since_seq,omitempty"`
}

type DdlLogResponse struct {
	Status  Status                   `json:"status"`
	Entries []syscatalog.DDLLogEntry `json:"entries"`
}

func (s *Server) DdlLog(ctx context.Context, req *DdlLogRequest) (*DdlLogResponse, error) {
	var entries []syscatalog.DDLLogEntry
	if err := s.manager.Gateway().FetchDdlLog(&entries); err != nil {
		return &DdlLogResponse{Status: statusFromError(err)}, nil
	}
	if req.SinceSeq > 0 {
		out := entries[:0]
		for _, e := range entries {
			if e.Seq > req.SinceSeq {
				out = append(out, e)
			}
		}
		entries = out
	}
	return &DdlLogResponse{Status: OK, Entries: entries}, nil
}

package rpc

import (
	"context"
	"time"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/heartbeat"
	"github.com/cuemby/warren/pkg/tserverset"
)

type RegisterTServerRequest struct {
	ID        string              `json:"id"`
	RPCAddr   string              `json:"rpc_addr"`
	Placement tserverset.CloudInfo `json:"placement"`
}

func (s *Server) RegisterTServer(ctx context.Context, req *RegisterTServerRequest) (*StatusOnlyResponse, error) {
	if s.registry == nil {
		return &StatusOnlyResponse{Status: statusFromError(catalogerr.New(catalogerr.NotSupported, "tserver registry not wired on this node"))}, nil
	}
	s.registry.Register(req.ID, req.RPCAddr, req.Placement)
	return &StatusOnlyResponse{Status: OK}, nil
}

type TServerSummary struct {
	ID                string               `json:"id"`
	RPCAddr           string               `json:"rpc_addr"`
	Placement         tserverset.CloudInfo `json:"placement"`
	Live              bool                 `json:"live"`
	NumLiveReplicas   int                  `json:"num_live_replicas"`
	Blacklisted       bool                 `json:"blacklisted"`
	LeaderBlacklisted bool                 `json:"leader_blacklisted"`
}

type ListTServersResponse struct {
	Status   Status           `json:"status"`
	TServers []TServerSummary `json:"tservers"`
}

func (s *Server) ListTServers(ctx context.Context, req *struct{}) (*ListTServersResponse, error) {
	if s.registry == nil {
		return &ListTServersResponse{Status: OK}, nil
	}
	all := s.registry.List()
	out := make([]TServerSummary, 0, len(all))
	for _, d := range all {
		out = append(out, TServerSummary{
			ID: d.ID, RPCAddr: d.RPCAddr, Placement: d.Placement, Live: s.registry.IsLive(d.ID),
			NumLiveReplicas: d.NumLiveReplicas, Blacklisted: d.Blacklisted, LeaderBlacklisted: d.LeaderBlacklisted,
		})
	}
	return &ListTServersResponse{Status: OK, TServers: out}, nil
}

type TSHeartbeatRequest struct {
	TServerID            string                     `json:"tserver_id"`
	RPCAddr              string                     `json:"rpc_addr,omitempty"`
	Placement            *tserverset.CloudInfo       `json:"placement,omitempty"`
	TabletReport         heartbeat.TabletReport     `json:"tablet_report"`
	ReportBudgetMillis   int64                      `json:"report_budget_millis,omitempty"`
}

type TSHeartbeatResponse struct {
	Status              Status `json:"status"`
	ProcessingTruncated bool   `json:"processing_truncated"`
	TabletsProcessed    int    `json:"tablets_processed"`
}

// TSHeartbeat ingests one tablet report (§4.7), registering/touching the
// reporting tserver in the registry first so its liveness and replica-count
// bookkeeping stay current even if the report itself is empty.
func (s *Server) TSHeartbeat(ctx context.Context, req *TSHeartbeatRequest) (*TSHeartbeatResponse, error) {
	if s.registry != nil {
		if req.Placement != nil {
			s.registry.Register(req.TServerID, req.RPCAddr, *req.Placement)
		}
		s.registry.Touch(req.TServerID, len(req.TabletReport.UpdatedTablets))
	}
	if s.reports == nil {
		return &TSHeartbeatResponse{Status: statusFromError(catalogerr.New(catalogerr.NotSupported, "report processor not wired on this node"))}, nil
	}

	budget := 5 * time.Second
	if req.ReportBudgetMillis > 0 {
		budget = time.Duration(req.ReportBudgetMillis) * time.Millisecond
	}
	updates, err := s.reports.ProcessTabletReport(ctx, req.TabletReport, budget)
	if err != nil {
		return &TSHeartbeatResponse{Status: statusFromError(err)}, nil
	}
	return &TSHeartbeatResponse{
		Status: OK, ProcessingTruncated: updates.ProcessingTruncated, TabletsProcessed: updates.TabletsProcessed,
	}, nil
}

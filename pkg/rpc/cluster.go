package rpc

import (
	"context"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/tserverset"
)

type GetClusterConfigResponse struct {
	Status  Status                  `json:"status"`
	Config  entity.ClusterConfigPB `json:"config"`
}

func (s *Server) GetClusterConfig(ctx context.Context, req *struct{}) (*GetClusterConfigResponse, error) {
	pb := s.manager.ClusterConfig().LockForRead()
	return &GetClusterConfigResponse{Status: OK, Config: *pb}, nil
}

type ChangeMasterClusterConfigRequest struct {
	ExpectedVersion uint32                          `json:"expected_version"`
	ReplicationInfo *entity.ReplicationInfoConfig   `json:"replication_info,omitempty"`
	ServerBlacklist *entity.Blacklist               `json:"server_blacklist,omitempty"`
	LeaderBlacklist *entity.Blacklist                `json:"leader_blacklist,omitempty"`
}

func (s *Server) ChangeMasterClusterConfig(ctx context.Context, req *ChangeMasterClusterConfigRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.ChangeMasterClusterConfig(catalog.ChangeMasterClusterConfigRequest{
		ExpectedVersion: req.ExpectedVersion, ReplicationInfo: req.ReplicationInfo,
		ServerBlacklist: req.ServerBlacklist, LeaderBlacklist: req.LeaderBlacklist,
	})
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

type SetPreferredZonesRequest struct {
	ExpectedVersion    uint32            `json:"expected_version"`
	AffinitizedLeaders []entity.CloudInfo `json:"affinitized_leaders"`
}

// SetPreferredZones is sugar over ChangeMasterClusterConfig that touches
// only affinitized_leaders, the field pkg/background's leader-affinity
// step-down (RunLeaderAffinityStepDown) reads.
func (s *Server) SetPreferredZones(ctx context.Context, req *SetPreferredZonesRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	current := s.manager.ClusterConfig().LockForRead().ReplicationInfo
	current.AffinitizedLeaders = req.AffinitizedLeaders
	err := s.manager.ChangeMasterClusterConfig(catalog.ChangeMasterClusterConfigRequest{
		ExpectedVersion: req.ExpectedVersion, ReplicationInfo: &current,
	})
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

func cloudInfoEqual(a entity.CloudInfo, b tserverset.CloudInfo) bool {
	return a.Cloud == b.Cloud && a.Region == b.Region && a.Zone == b.Zone
}

// blacklistProgress implements the YugabyteDB "load move percent" metric:
// the fraction of a blacklisted host's load recorded at blacklist-time
// that has since drained. A host with nothing recorded at blacklist-time
// counts as fully drained (percent 100) rather than dividing by zero.
func blacklistProgress(hosts []string, initialLoad int, currentLoad func(host string) int) int {
	if len(hosts) == 0 || initialLoad == 0 {
		return 100
	}
	var remaining int
	for _, h := range hosts {
		remaining += currentLoad(h)
	}
	if remaining >= initialLoad {
		return 0
	}
	moved := initialLoad - remaining
	return moved * 100 / initialLoad
}

func (s *Server) currentReplicaLoad(host string) int {
	d := s.registry.Get(host)
	if d == nil {
		return 0
	}
	return d.NumLiveReplicas
}

func (s *Server) currentLeaderLoad(host string) int {
	count := 0
	for _, tbl := range s.manager.ListTables() {
		for _, tl := range tbl.GetTablets(false) {
			if leader, ok := tl.GetLeader(); ok && leader == host {
				count++
			}
		}
	}
	return count
}

type LoadMovePercentResponse struct {
	Status  Status `json:"status"`
	Percent int    `json:"percent"`
}

func (s *Server) GetLoadMovePercent(ctx context.Context, req *struct{}) (*LoadMovePercentResponse, error) {
	bl := s.manager.ClusterConfig().LockForRead().ServerBlacklist
	return &LoadMovePercentResponse{Status: OK, Percent: blacklistProgress(bl.Hosts, bl.InitialReplicaLoad, s.currentReplicaLoad)}, nil
}

func (s *Server) GetLeaderBlacklistPercent(ctx context.Context, req *struct{}) (*LoadMovePercentResponse, error) {
	bl := s.manager.ClusterConfig().LockForRead().LeaderBlacklist
	return &LoadMovePercentResponse{Status: OK, Percent: blacklistProgress(bl.Hosts, bl.InitialLeaderLoad, s.currentLeaderLoad)}, nil
}

type BoolResponse struct {
	Status Status `json:"status"`
	Value  bool   `json:"value"`
}

// IsLoadBalanced and IsLoadBalancerIdle both report on whether any
// blacklisted host still carries load this implementation has no separate
// rebalance-move queue to drain (pkg/assignment only ever assigns new
// replicas, it never migrates existing ones — see DESIGN.md): both RPCs
// answer the same underlying question, the way they agree in practice once
// a real mover's queue is empty.
func (s *Server) IsLoadBalanced(ctx context.Context, req *struct{}) (*BoolResponse, error) {
	cc := s.manager.ClusterConfig().LockForRead()
	balanced := blacklistProgress(cc.ServerBlacklist.Hosts, cc.ServerBlacklist.InitialReplicaLoad, s.currentReplicaLoad) == 100 &&
		blacklistProgress(cc.LeaderBlacklist.Hosts, cc.LeaderBlacklist.InitialLeaderLoad, s.currentLeaderLoad) == 100
	return &BoolResponse{Status: OK, Value: balanced}, nil
}

func (s *Server) IsLoadBalancerIdle(ctx context.Context, req *struct{}) (*BoolResponse, error) {
	return s.IsLoadBalanced(ctx, req)
}

// AreLeadersOnPreferredOnly reports whether every tablet's current leader
// sits in an affinitized zone, the condition pkg/background's
// RunLeaderAffinityStepDown is continuously driving toward.
func (s *Server) AreLeadersOnPreferredOnly(ctx context.Context, req *struct{}) (*BoolResponse, error) {
	affinitized := s.manager.ClusterConfig().LockForRead().ReplicationInfo.AffinitizedLeaders
	if len(affinitized) == 0 || s.registry == nil {
		return &BoolResponse{Status: OK, Value: true}, nil
	}
	for _, tbl := range s.manager.ListTables() {
		for _, tl := range tbl.GetTablets(false) {
			leader, ok := tl.GetLeader()
			if !ok {
				continue
			}
			d := s.registry.Get(leader)
			if d == nil {
				continue
			}
			inZone := false
			for _, z := range affinitized {
				if cloudInfoEqual(z, d.Placement) {
					inZone = true
					break
				}
			}
			if !inZone {
				return &BoolResponse{Status: OK, Value: false}, nil
			}
		}
	}
	return &BoolResponse{Status: OK, Value: true}, nil
}

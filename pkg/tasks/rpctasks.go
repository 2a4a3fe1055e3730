package tasks

import (
	"context"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/tserverset"
)

// ScheduleCreateReplica fans out AsyncCreateReplica to every tserver in
// tserverIDs, satisfying assignment.ReplicaTaskScheduler.
func (r *Runner) ScheduleCreateReplica(tablet *entity.TabletInfo, tserverIDs []string) {
	if r.proxy == nil {
		return
	}
	pb := tablet.LockForRead()
	peers := append([]string(nil), tserverIDs...)
	for _, tserverID := range tserverIDs {
		tserverID := tserverID
		r.ScheduleTask("create-replica", nil, func(ctx context.Context) error {
			return r.proxy.CreateReplica(ctx, tserverset.CreateReplicaRequest{
				TServerID: tserverID,
				TabletID:  pb.ID,
				TableID:   pb.TableID,
				Peers:     peers,
			})
		})
	}
}

// ScheduleStartElection issues AsyncStartElection to a single candidate
// tserver, satisfying assignment.ReplicaTaskScheduler.
func (r *Runner) ScheduleStartElection(tablet *entity.TabletInfo, tserverID string) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	r.ScheduleTask("start-election", nil, func(ctx context.Context) error {
		return r.proxy.StartElection(ctx, tserverset.StartElectionRequest{
			TServerID: tserverID,
			TabletID:  tabletID,
		})
	})
}

// ScheduleAlterTable fans out AsyncAlterTable to every current replica of
// tablet, satisfying catalog.TaskScheduler.
func (r *Runner) ScheduleAlterTable(table *entity.TableInfo, tablet *entity.TabletInfo) {
	if r.proxy == nil {
		return
	}
	tpb := table.LockForRead()
	for tserverID := range tablet.GetReplicaLocations() {
		tserverID := tserverID
		r.ScheduleTask("alter-table", table, func(ctx context.Context) error {
			return r.proxy.AlterTable(ctx, tserverset.AlterTableRequest{
				TServerID: tserverID,
				TabletID:  tablet.ID(),
				TableID:   tpb.ID,
				Version:   int64(tpb.Version),
				TxnID:     tpb.PendingTxnID,
			})
		})
	}
}

// ScheduleDeleteReplica fans out AsyncDeleteReplica to every current
// replica of tablet, satisfying catalog.TaskScheduler.
func (r *Runner) ScheduleDeleteReplica(tablet *entity.TabletInfo, hideOnly bool) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	for tserverID := range tablet.GetReplicaLocations() {
		tserverID := tserverID
		r.ScheduleTask("delete-replica", nil, func(ctx context.Context) error {
			return r.proxy.DeleteReplica(ctx, tserverset.DeleteReplicaRequest{
				TServerID: tserverID,
				TabletID:  tabletID,
				HideOnly:  hideOnly,
			})
		})
	}
}

// ScheduleDeleteReplicaTombstone issues a single targeted
// AsyncDeleteReplica(TOMBSTONED) against one evicted replica, the
// per-reporting-tserver variant §4.7's heartbeat pipeline needs rather than
// ScheduleDeleteReplica's broadcast-to-every-current-replica shape.
func (r *Runner) ScheduleDeleteReplicaTombstone(tserverID, tabletID string) {
	if r.proxy == nil {
		return
	}
	r.ScheduleTask("delete-replica-tombstone", nil, func(ctx context.Context) error {
		return r.proxy.DeleteReplica(ctx, tserverset.DeleteReplicaRequest{
			TServerID: tserverID,
			TabletID:  tabletID,
			Tombstone: true,
		})
	})
}

// ScheduleTruncate issues AsyncTruncate to every current replica of
// tablet, satisfying catalog.TaskScheduler.
func (r *Runner) ScheduleTruncate(tablet *entity.TabletInfo) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	for tserverID := range tablet.GetReplicaLocations() {
		tserverID := tserverID
		r.ScheduleTask("truncate-tablet", nil, func(ctx context.Context) error {
			return r.proxy.TruncateTablet(ctx, tserverset.TruncateTabletRequest{
				TServerID: tserverID,
				TabletID:  tabletID,
			})
		})
	}
}

// ScheduleAddServer/ScheduleRemoveServer/ScheduleTryStepDown cover the
// remaining §4.8 config-change variants. No code in this repository calls
// them; pkg/background's leader-affinity pass steps down through
// catalog.Manager.StepDownTo instead.
func (r *Runner) ScheduleAddServer(tablet *entity.TabletInfo, leaderTServerID, newPeerID string) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	r.ScheduleTask("add-server", nil, func(ctx context.Context) error {
		return r.proxy.AddServer(ctx, tserverset.ChangeConfigRequest{
			TServerID: leaderTServerID,
			TabletID:  tabletID,
			PeerID:    newPeerID,
		})
	})
}

func (r *Runner) ScheduleRemoveServer(tablet *entity.TabletInfo, leaderTServerID, peerID string) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	r.ScheduleTask("remove-server", nil, func(ctx context.Context) error {
		return r.proxy.RemoveServer(ctx, tserverset.ChangeConfigRequest{
			TServerID: leaderTServerID,
			TabletID:  tabletID,
			PeerID:    peerID,
		})
	})
}

func (r *Runner) ScheduleTryStepDown(tablet *entity.TabletInfo, leaderTServerID, newLeaderHint string) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	r.ScheduleTask("try-step-down", nil, func(ctx context.Context) error {
		return r.proxy.TryStepDown(ctx, tserverset.StepDownRequest{
			TServerID:     leaderTServerID,
			TabletID:      tabletID,
			NewLeaderHint: newLeaderHint,
		})
	})
}

// ScheduleSplitTablet and GetTabletSplitKey back pkg/split's SplitTablet/
// DoSplitTablet algorithm.
func (r *Runner) ScheduleSplitTablet(tablet *entity.TabletInfo, leaderTServerID string, childIDs [2]string, encodedKey, partitionKey string) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	r.ScheduleTask("split-tablet", nil, func(ctx context.Context) error {
		return r.proxy.SplitTablet(ctx, tserverset.SplitTabletRequest{
			TServerID:      leaderTServerID,
			TabletID:       tabletID,
			ChildTabletIDs: childIDs,
			EncodedKey:     encodedKey,
			PartitionKey:   partitionKey,
		})
	})
}

// GetTabletSplitKey is synchronous (DoSplitTablet needs the answer before
// it can proceed), so it calls the proxy directly rather than going
// through the retrying task runner; the caller is expected to retry at the
// pkg/split call site if it wants that behavior.
func (r *Runner) GetTabletSplitKey(ctx context.Context, tablet *entity.TabletInfo, leaderTServerID string) (tserverset.GetSplitKeyResponse, error) {
	if r.proxy == nil {
		return tserverset.GetSplitKeyResponse{}, catalogerr.New(catalogerr.ServiceUnavailable, "no tserver proxy configured")
	}
	return r.proxy.GetTabletSplitKey(ctx, tserverset.GetSplitKeyRequest{
		TServerID: leaderTServerID,
		TabletID:  tablet.ID(),
	})
}

// ScheduleAddTableToTablet/ScheduleRemoveTableFromTablet back colocated
// table placement/removal onto an existing shared tablet.
func (r *Runner) ScheduleAddTableToTablet(tablet *entity.TabletInfo, tableID string) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	for tserverID := range tablet.GetReplicaLocations() {
		tserverID := tserverID
		r.ScheduleTask("add-table-to-tablet", nil, func(ctx context.Context) error {
			return r.proxy.AddTableToTablet(ctx, tserverset.AddTableToTabletRequest{
				TServerID: tserverID,
				TabletID:  tabletID,
				TableID:   tableID,
			})
		})
	}
}

func (r *Runner) ScheduleRemoveTableFromTablet(tablet *entity.TabletInfo, tableID string) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	for tserverID := range tablet.GetReplicaLocations() {
		tserverID := tserverID
		r.ScheduleTask("remove-table-from-tablet", nil, func(ctx context.Context) error {
			return r.proxy.RemoveTableFromTablet(ctx, tserverset.RemoveTableFromTabletRequest{
				TServerID: tserverID,
				TabletID:  tabletID,
				TableID:   tableID,
			})
		})
	}
}

// ScheduleCopartitionTable backs CopartitionTable DDL.
func (r *Runner) ScheduleCopartitionTable(tablet *entity.TabletInfo, leaderTServerID, tableID string) {
	if r.proxy == nil {
		return
	}
	tabletID := tablet.ID()
	r.ScheduleTask("copartition-table", nil, func(ctx context.Context) error {
		return r.proxy.CopartitionTable(ctx, tserverset.CopartitionTableRequest{
			TServerID: leaderTServerID,
			TabletID:  tabletID,
			TableID:   tableID,
		})
	})
}

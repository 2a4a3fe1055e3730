// Package heartbeat implements the tablet report processor (spec.md §4.7):
// ingest one TSHeartbeat's TabletReport, reconcile every reported tablet's
// consensus state and schema version against the catalog, and dispatch the
// follow-up RPCs that keeps the tserver's view converging. Structurally it
// plays the same role the teacher's pkg/reconciler/reconciler.go does
// (drive actual state toward desired state on a recurring pass); the
// difference is this pass is request-driven by an inbound report rather
// than timer-driven, so Processor exposes ProcessTabletReport as a method
// called from pkg/rpc's TSHeartbeat handler instead of running its own
// ticker loop.
package heartbeat

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/tserverset"
)

// ReportedTablet is one entry of an inbound TabletReport.
type ReportedTablet struct {
	TabletID string

	// ReportedState is the tserver's view of the tablet's runtime state;
	// RUNNING is consulted as the promotion trigger and step 4b treats any
	// non-empty value as "still visible"; the rest of the state machine
	// lives on the catalog's own TabletInfo.
	ReportedState entity.TabletState

	// ConsensusState is the tablet's committed consensus state as observed
	// by this replica, or nil if the replica has nothing new to report.
	ConsensusState *entity.ConsensusState

	// IsLeader marks whether TServerID is this tablet's reported leader;
	// schema version advancement (§4.7 step 6) is only trusted from the
	// leader replica.
	IsLeader bool

	// SchemaVersions maps table_id -> the schema version this replica has
	// applied, for every table the tablet serves (itself, plus colocated
	// siblings).
	SchemaVersions map[string]uint32
}

// TabletReport is one TSHeartbeat's tablet report payload.
type TabletReport struct {
	TServerID            string
	IsIncremental        bool
	UpdatedTablets       []ReportedTablet
	RemainingTabletCount int
}

// TabletReportUpdates is returned to the tserver in the TSHeartbeat
// response.
type TabletReportUpdates struct {
	ProcessingTruncated bool
	TabletsProcessed    int
}

const defaultBatchSize = 64

// Processor implements ProcessTabletReport.
type Processor struct {
	manager *catalog.Manager
	proxy   tserverset.TSProxy
	logger  zerolog.Logger

	batchSize     int
	deadlineRatio float64
}

// NewProcessor builds a report processor. proxy may be nil, in which case
// every follow-up RPC this pass would have issued is skipped — the catalog
// state still converges, just without notifying the tserver, which keeps
// this package testable without a live tserver connection.
func NewProcessor(m *catalog.Manager, proxy tserverset.TSProxy) *Processor {
	return &Processor{
		manager:       m,
		proxy:         proxy,
		logger:        log.WithComponent("heartbeat"),
		batchSize:     defaultBatchSize,
		deadlineRatio: 0.2,
	}
}

// ProcessTabletReport implements the 8-step pipeline of §4.7. budget bounds
// the whole call; once the remaining fraction of budget falls under the
// processor's deadline ratio, processing stops mid-report with
// ProcessingTruncated set, and the tserver is expected to resend the rest.
func (p *Processor) ProcessTabletReport(ctx context.Context, report TabletReport, budget time.Duration) (TabletReportUpdates, error) {
	var updates TabletReportUpdates
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReportProcessingDuration)
	deadline := time.Now().Add(budget)
	termAtStart := p.manager.CurrentTerm()

	// Step 1: resolve each reported tablet; unknown tablets or tablets
	// whose table is gone get a DELETED tombstone and drop out of the
	// batch.
	retained := make([]ReportedTablet, 0, len(report.UpdatedTablets))
	for _, rt := range report.UpdatedTablets {
		tl := p.manager.Tablet(rt.TabletID)
		if tl == nil {
			p.scheduleDeleteTablet(report.TServerID, rt.TabletID, false)
			continue
		}
		table := p.manager.Table(tl.LockForRead().TableID)
		if table == nil || table.LockForRead().State == entity.TableDeleting {
			p.scheduleDeleteTablet(report.TServerID, rt.TabletID, false)
			continue
		}
		retained = append(retained, rt)
	}

	// Step 2: sort by tablet_id and process in bounded batches.
	sort.Slice(retained, func(i, j int) bool { return retained[i].TabletID < retained[j].TabletID })

	for start := 0; start < len(retained); start += p.batchSize {
		// Step 8: safe-deadline ratio check before starting the next batch.
		if budget > 0 && float64(time.Until(deadline))/float64(budget) < p.deadlineRatio {
			updates.ProcessingTruncated = true
			metrics.ReportsTruncatedTotal.Inc()
			return updates, nil
		}

		end := start + p.batchSize
		if end > len(retained) {
			end = len(retained)
		}
		batch := retained[start:end]
		// Step 3: table read-locks sorted by table id, then per-tablet
		// write-locks sorted by tablet id. The CoW wrappers snapshot their
		// committed pointer under a brief internal lock rather than
		// holding one open across a call (see entity.TableInfo.LockForRead),
		// so the ordering discipline here is enforced by processing tablets
		// in tablet-id order (the batch is not grouped or ordered by table
		// id), rather than by holding Go mutexes open across the whole batch.
		for _, rt := range batch {
			if err := p.processOneTablet(report.TServerID, rt); err != nil {
				p.logger.Error().Err(err).Str("tablet_id", rt.TabletID).Msg("process tablet report entry failed")
			}
		}
		updates.TabletsProcessed += len(batch)

		// Step 7 (partial): abort-and-return if the leader term changed
		// mid-batch.
		if p.manager.CurrentTerm() != termAtStart {
			return updates, catalogerr.NotLeader()
		}
	}

	return updates, nil
}

func (p *Processor) processOneTablet(tserverID string, rt ReportedTablet) error {
	tl := p.manager.Tablet(rt.TabletID)
	if tl == nil {
		return nil
	}
	pb := tl.LockForRead()
	table := p.manager.Table(pb.TableID)

	// Step 4a: tablet DELETED or owning table DELETING.
	if pb.State == entity.TabletDeleted || (table != nil && table.LockForRead().State == entity.TableDeleting) {
		p.scheduleDeleteTablet(tserverID, rt.TabletID, false)
		return nil
	}

	// Step 4b: HIDDEN/HIDING but tserver still reports it visible.
	if table != nil {
		hs := table.LockForRead().HideState
		if (hs == entity.HideHidden || hs == entity.HideHiding) && rt.ReportedState != "" {
			p.scheduleDeleteTablet(tserverID, rt.TabletID, true)
			return nil
		}
	}

	// Step 4c/4d: reconcile consensus state if this report carries one.
	if rt.ConsensusState != nil {
		if err := p.processCommittedConsensusState(tl, tserverID, *rt.ConsensusState, rt.ReportedState); err != nil {
			return err
		}
	}

	// Step 4e / step 6: schema version lag, trusted only from the leader.
	if rt.IsLeader {
		for tableID, version := range rt.SchemaVersions {
			tl.SetReportedSchemaVersion(tableID, version)
			if t := p.manager.Table(tableID); t != nil {
				p.maybeAdvanceAlterState(t, version)
				if t.LockForRead().FullyAppliedSchema == nil && t.LockForRead().Schema.NextColumnID > 0 && version < t.LockForRead().Version {
					p.scheduleAlterTable(t, tl)
				}
			}
		}
	}

	return nil
}

// processCommittedConsensusState implements §4.7 step 4's
// ProcessCommittedConsensusState: reject stale reports, drop a leader not
// present in the new config, promote to RUNNING once a leader is known,
// reconcile the replica map, and persist.
func (p *Processor) processCommittedConsensusState(tl *entity.TabletInfo, reportingTServer string, reported entity.ConsensusState, reportedState entity.TabletState) error {
	current := tl.LockForRead().CommittedConsensusState

	// Reject stale: lower term, or same term with a lower opid_index.
	if reported.Term < current.Term {
		return nil
	}
	if reported.Term == current.Term && reported.Config.OpIDIndex < current.Config.OpIDIndex {
		return nil
	}

	leaderUUID := reported.LeaderUUID
	inConfig := false
	for _, peer := range reported.Config.Peers {
		if peer.TServerID == leaderUUID {
			inConfig = true
			break
		}
	}
	if !inConfig {
		leaderUUID = ""
	}

	pb := tl.LockForWrite()
	pb.CommittedConsensusState = entity.ConsensusState{Term: reported.Term, Config: reported.Config, LeaderUUID: leaderUUID}

	if pb.State != entity.TabletRunning && reportedState == entity.TabletRunning && leaderUUID != "" {
		pb.State = entity.TabletRunning
	}

	// Reconcile the replica map: keep replicas still present in the new
	// config; anything STARTING-and-not-stale survives even if momentarily
	// absent from a partial report; evicted peers are tombstoned.
	reconciled := make(map[string]entity.Replica, len(reported.Config.Peers))
	for _, peer := range reported.Config.Peers {
		if existing, ok := pb.ReplicaLocations[peer.TServerID]; ok {
			existing.MemberType = peer.MemberType
			if peer.TServerID == leaderUUID {
				existing.Role = entity.RoleLeader
			} else if existing.Role == entity.RoleLeader {
				existing.Role = entity.RoleFollower
			}
			reconciled[peer.TServerID] = existing
		} else {
			reconciled[peer.TServerID] = entity.Replica{
				TServerID:  peer.TServerID,
				MemberType: peer.MemberType,
				Role:       roleFor(peer.TServerID, leaderUUID),
				State:      entity.ReplicaStarting,
				TimeUpdated: time.Now(),
			}
		}
	}
	for id, r := range pb.ReplicaLocations {
		if _, stillPresent := reconciled[id]; !stillPresent && r.State == entity.ReplicaStarting {
			// Starting replicas that briefly drop out of a partial report
			// are preserved rather than evicted.
			reconciled[id] = r
		}
	}
	evicted := make([]string, 0)
	for id := range pb.ReplicaLocations {
		if _, stillPresent := reconciled[id]; !stillPresent {
			evicted = append(evicted, id)
		}
	}
	pb.ReplicaLocations = reconciled

	if err := p.manager.Gateway().Upsert(p.manager.UpsertTerm(), pb); err != nil {
		tl.AbortMutation()
		return err
	}
	tl.Commit()

	for _, id := range evicted {
		p.scheduleTombstone(id, tl.ID(), current.Config.OpIDIndex)
	}

	if leaderUUID == "" && reported.Term == 0 {
		p.maybeTriggerLeaderElection(tl)
	}
	return nil
}

func roleFor(tserverID, leaderUUID string) entity.ReplicaRole {
	if tserverID == leaderUUID {
		return entity.RoleLeader
	}
	return entity.RoleFollower
}

// maybeAdvanceAlterState implements step 6's
// HandleTabletSchemaVersionReport: once every tablet of an ALTERING table
// has caught up to the table's current version, the table returns to
// RUNNING.
func (p *Processor) maybeAdvanceAlterState(table *entity.TableInfo, reportedVersion uint32) {
	pb := table.LockForRead()
	if pb.State != entity.TableAltering {
		return
	}
	for _, tl := range table.GetTablets(false) {
		v, ok := tl.LockForRead().ReportedSchemaVersion[pb.ID]
		if !ok || v < pb.Version {
			return
		}
	}

	w := table.LockForWrite()
	w.State = entity.TableRunning
	w.FullyAppliedSchema = w.Schema.Clone()
	if err := p.manager.Gateway().Upsert(p.manager.UpsertTerm(), w); err != nil {
		table.AbortMutation()
		p.logger.Error().Err(err).Str("table_id", pb.ID).Msg("persist alter-complete state failed")
		return
	}
	table.Commit()
}

func (p *Processor) maybeTriggerLeaderElection(tl *entity.TabletInfo) {
	pb := tl.LockForRead()
	if len(pb.CommittedConsensusState.Config.Peers) == 0 {
		return
	}
	candidates := make([]string, 0, len(pb.CommittedConsensusState.Config.Peers))
	for _, peer := range pb.CommittedConsensusState.Config.Peers {
		if peer.MemberType == entity.MemberVoter {
			candidates = append(candidates, peer.TServerID)
		}
	}
	if len(candidates) == 0 {
		return
	}
	sort.Strings(candidates)
	if !tl.InitiateElection() {
		return
	}
	if p.proxy != nil {
		_ = p.proxy.StartElection(context.Background(), tserverset.StartElectionRequest{TServerID: candidates[0], TabletID: tl.ID()})
	}
}

func (p *Processor) scheduleDeleteTablet(tserverID, tabletID string, hideOnly bool) {
	if p.proxy == nil {
		return
	}
	_ = p.proxy.DeleteReplica(context.Background(), tserverset.DeleteReplicaRequest{
		TServerID: tserverID,
		TabletID:  tabletID,
		HideOnly:  hideOnly,
	})
}

func (p *Processor) scheduleTombstone(tserverID, tabletID string, prevOpIDIndex int64) {
	if p.proxy == nil {
		return
	}
	_ = p.proxy.DeleteReplica(context.Background(), tserverset.DeleteReplicaRequest{
		TServerID:            tserverID,
		TabletID:             tabletID,
		Tombstone:            true,
		OpIDIndexLessOrEqual: prevOpIDIndex,
	})
}

func (p *Processor) scheduleAlterTable(table *entity.TableInfo, tl *entity.TabletInfo) {
	if p.proxy == nil {
		return
	}
	pb := table.LockForRead()
	leader, ok := tl.GetLeader()
	if !ok {
		return
	}
	_ = p.proxy.AlterTable(context.Background(), tserverset.AlterTableRequest{
		TServerID: leader,
		TabletID:  tl.ID(),
		TableID:   pb.ID,
		Version:   int64(pb.Version),
		TxnID:     pb.PendingTxnID,
	})
}

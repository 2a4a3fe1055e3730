// Package assignment implements the tablet assignment pipeline (spec.md
// §4.6): a background pass that drives PREPARING tablets to CREATING,
// replaces CREATING tablets that have overrun their creation timeout, and
// selects the replica set for every tablet that needs one.
//
// The ticker/stopCh run loop is grounded directly in the teacher's
// pkg/scheduler/scheduler.go — same Start/Stop/run shape, generalized from
// "assign containers to nodes" to "assign tablet replicas to tservers".
package assignment

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/tserverset"
)

// ReplicaTaskScheduler is the narrow fan-out interface the assignment pass
// needs from the async task framework (C8), following the same
// nil-is-a-no-op contract as catalog.TaskScheduler so this package is
// independently testable before pkg/tasks exists.
type ReplicaTaskScheduler interface {
	ScheduleCreateReplica(tablet *entity.TabletInfo, tserverIDs []string)
	ScheduleStartElection(tablet *entity.TabletInfo, tserverID string)
}

// blockCandidates pairs one placement block with the live candidates that
// match its cloud/region/zone filter (§4.6 step 2).
type blockCandidates struct {
	block entity.PlacementBlock
	ts    []*tserverset.Descriptor
}

// Assigner runs the periodic assignment pass.
type Assigner struct {
	manager  *catalog.Manager
	tservers *tserverset.Registry
	sched    ReplicaTaskScheduler
	logger   zerolog.Logger

	// creatingTimeout bounds how long a tablet may sit in CREATING before
	// it is replaced with a clone (§4.6 "Creating & overdue").
	creatingTimeout time.Duration
	period          time.Duration

	rnd *rand.Rand

	stopCh chan struct{}
}

// NewAssigner wires an assignment pass against manager's catalog state and
// the given tserver registry. sched may be nil, in which case replica
// creation/election is computed and persisted but never dispatched —
// useful for exercising SelectReplicasForTablet in isolation.
func NewAssigner(m *catalog.Manager, tservers *tserverset.Registry, sched ReplicaTaskScheduler) *Assigner {
	return &Assigner{
		manager:         m,
		tservers:        tservers,
		sched:           sched,
		logger:          log.WithComponent("assignment"),
		creatingTimeout: 60 * time.Second,
		period:          2 * time.Second,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:          make(chan struct{}),
	}
}

// Start begins the periodic assignment loop.
func (a *Assigner) Start() { go a.run() }

// Stop terminates the loop.
func (a *Assigner) Stop() { close(a.stopCh) }

func (a *Assigner) run() {
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.RunOnce(); err != nil {
				a.logger.Error().Err(err).Msg("assignment pass failed")
			}
		case <-a.stopCh:
			return
		}
	}
}

// RunOnce performs one assignment pass: collect the preparing and
// overdue-creating work sets, then select replicas for every tablet that
// needs them.
func (a *Assigner) RunOnce() error {
	if !a.manager.IsLeader() {
		return nil
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AssignmentPassDuration)

	for _, table := range a.manager.ListTables() {
		if table.LockForRead().State == entity.TableDeleting {
			continue
		}
		for _, tablet := range table.GetTablets(false) {
			switch tablet.LockForRead().State {
			case entity.TabletPreparing:
				a.markCreating(tablet)
				if err := a.selectReplicas(table, tablet); err != nil {
					a.logger.Error().Err(err).Str("tablet_id", tablet.ID()).Msg("replica selection failed")
				}
			case entity.TabletCreating:
				if a.isOverdue(tablet) {
					a.replaceOverdueTablet(table, tablet)
				}
			}
		}
	}
	return nil
}

func (a *Assigner) markCreating(tl *entity.TabletInfo) {
	pb := tl.LockForWrite()
	pb.State = entity.TabletCreating
	pb.CreatingStartedAt = time.Now()
	tl.Commit()
}

func (a *Assigner) isOverdue(tl *entity.TabletInfo) bool {
	pb := tl.LockForRead()
	return time.Since(pb.CreatingStartedAt) > a.creatingTimeout
}

// replaceOverdueTablet clones a CREATING tablet that has overrun its
// timeout into a replacement, unless it is a post-split child — those are
// restarted on their source replicas instead of replaced (§4.6).
func (a *Assigner) replaceOverdueTablet(table *entity.TableInfo, old *entity.TabletInfo) {
	oldPB := old.LockForRead()
	if oldPB.SplitParentTabletID != "" {
		return
	}

	replacement := entity.NewTabletInfo(&entity.TabletPB{
		ID:                uuid.NewString(),
		TableID:           oldPB.TableID,
		TableIDs:          append([]string(nil), oldPB.TableIDs...),
		Partition:         oldPB.Partition,
		State:             entity.TabletCreating,
		ReplicaLocations:  make(map[string]entity.Replica),
		CreatingStartedAt: time.Now(),
		CreatedAt:         time.Now(),
	})

	oldW := old.LockForWrite()
	oldW.State = entity.TabletReplaced
	oldW.ReplacementTabletID = replacement.ID()
	if err := a.manager.Gateway().Upsert(a.manager.UpsertTerm(), oldW, replacement.LockForRead()); err != nil {
		old.AbortMutation()
		a.logger.Error().Err(err).Str("tablet_id", old.ID()).Msg("persist replacement tablet failed")
		return
	}
	old.Commit()

	table.ReplaceTablet(oldPB.Partition.PartitionKeyStart, old, replacement)
	a.manager.RegisterTabletLocked(table, oldPB.Partition.PartitionKeyStart, replacement)

	if err := a.selectReplicas(table, replacement); err != nil {
		a.logger.Error().Err(err).Str("tablet_id", replacement.ID()).Msg("replica selection failed for replacement")
	}
}

// selectReplicas implements SelectReplicasForTablet's 5 steps (§4.6).
func (a *Assigner) selectReplicas(table *entity.TableInfo, tl *entity.TabletInfo) error {
	// Step 1: build ReplicationInfo (override > tablespace > cluster; see
	// Manager.ResolveReplicationInfo).
	repl := a.manager.ResolveReplicationInfo(table)
	placement := repl.LiveReplicas
	if placement.NumReplicas <= 0 {
		placement.NumReplicas = 1
	}

	blocks := placement.PlacementBlocks
	if len(blocks) == 0 {
		blocks = []entity.PlacementBlock{{MinNumReplicas: placement.NumReplicas}}
	}

	// Step 2: per-block live, non-blacklisted candidates.
	allLive := a.tservers.Candidates(tserverset.CloudInfo{})
	if len(allLive) < placement.NumReplicas {
		return fmt.Errorf("assignment: only %d live tservers, need %d", len(allLive), placement.NumReplicas)
	}

	blockSet := make([]blockCandidates, 0, len(blocks))
	sumMin := 0
	for _, b := range blocks {
		cands := a.tservers.Candidates(tserverset.CloudInfo(b.CloudInfo))
		if len(cands) < b.MinNumReplicas {
			return fmt.Errorf("assignment: placement block %+v cannot satisfy min_num_replicas=%d (only %d candidates)", b.CloudInfo, b.MinNumReplicas, len(cands))
		}
		sumMin += b.MinNumReplicas
		blockSet = append(blockSet, blockCandidates{block: b, ts: cands})
	}
	// Step 3 (remaining rejection): sum(min) > num_replicas.
	if sumMin > placement.NumReplicas {
		return fmt.Errorf("assignment: sum of block minimums (%d) exceeds num_replicas (%d)", sumMin, placement.NumReplicas)
	}

	// Step 4: allocate per-block minimums via power-of-two choices, then
	// spread the remainder across the union of all allowed tservers.
	chosen := make(map[string]*tserverset.Descriptor)
	for _, bc := range blockSet {
		picks := a.powerOfTwoChoose(bc.ts, bc.block.MinNumReplicas, chosen)
		for _, d := range picks {
			chosen[d.ID] = d
		}
	}
	remaining := placement.NumReplicas - len(chosen)
	if remaining > 0 {
		union := a.unionCandidates(blockSet)
		picks := a.powerOfTwoChoose(union, remaining, chosen)
		for _, d := range picks {
			chosen[d.ID] = d
		}
	}
	if len(chosen) < placement.NumReplicas {
		return fmt.Errorf("assignment: could not assemble %d replicas, only placed %d", placement.NumReplicas, len(chosen))
	}

	peers := make([]entity.RaftConfigPeer, 0, len(chosen))
	ids := make([]string, 0, len(chosen))
	for id := range chosen {
		peers = append(peers, entity.RaftConfigPeer{TServerID: id, MemberType: entity.MemberVoter})
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Step 5: populate RaftConfig at current_term=0 (minimum_term),
	// opid_index=-1 (invalid, no entries applied yet).
	pb := tl.LockForWrite()
	pb.CommittedConsensusState.Config = entity.RaftConfig{Peers: peers, OpIDIndex: -1}
	for _, id := range ids {
		a.tservers.RecordReplicaCreation(id)
		pb.ReplicaLocations[id] = entity.Replica{
			TServerID:  id,
			MemberType: entity.MemberVoter,
			State:      entity.ReplicaStarting,
		}
	}
	if err := a.manager.Gateway().Upsert(a.manager.UpsertTerm(), pb); err != nil {
		tl.AbortMutation()
		return fmt.Errorf("persist tablet replicas: %w", err)
	}
	tl.Commit()

	if a.sched != nil {
		a.sched.ScheduleCreateReplica(tl, ids)
	}

	metrics.TabletsAssigned.Inc()
	a.maybeInitiateElection(tl, ids)
	return nil
}

// maybeInitiateElection picks a leader candidate once a tablet's config is
// populated and no leader exists yet at term 0, guarded by the tablet's
// one-shot InitiateElection flag (§4.6 "Leader hint").
func (a *Assigner) maybeInitiateElection(tl *entity.TabletInfo, candidateIDs []string) {
	pb := tl.LockForRead()
	if pb.CommittedConsensusState.Term != 0 || pb.CommittedConsensusState.LeaderUUID != "" {
		return
	}
	if len(candidateIDs) == 0 {
		return
	}
	sorted := append([]string(nil), candidateIDs...)
	sort.Strings(sorted)
	leaderHint := sorted[0]

	if !tl.InitiateElection() {
		return
	}
	if a.sched != nil {
		a.sched.ScheduleStartElection(tl, leaderHint)
	}
}

// powerOfTwoChoose draws n distinct tservers from candidates (excluding
// anything already in exclude), each pick made by sampling two random
// candidates and keeping the one with the lower
// recent_replica_creations+num_live_replicas score, ties broken randomly.
func (a *Assigner) powerOfTwoChoose(candidates []*tserverset.Descriptor, n int, exclude map[string]*tserverset.Descriptor) []*tserverset.Descriptor {
	pool := make([]*tserverset.Descriptor, 0, len(candidates))
	for _, d := range candidates {
		if _, skip := exclude[d.ID]; !skip {
			pool = append(pool, d)
		}
	}

	out := make([]*tserverset.Descriptor, 0, n)
	for len(out) < n && len(pool) > 0 {
		var pick *tserverset.Descriptor
		if len(pool) == 1 {
			pick = pool[0]
		} else {
			i, j := a.rnd.Intn(len(pool)), a.rnd.Intn(len(pool))
			for j == i {
				j = a.rnd.Intn(len(pool))
			}
			si, sj := score(pool[i]), score(pool[j])
			switch {
			case si < sj:
				pick = pool[i]
			case sj < si:
				pick = pool[j]
			case a.rnd.Intn(2) == 0:
				pick = pool[i]
			default:
				pick = pool[j]
			}
		}
		out = append(out, pick)
		pool = removeDescriptor(pool, pick.ID)
	}
	return out
}

func score(d *tserverset.Descriptor) int { return d.RecentReplicaCreations + d.NumLiveReplicas }

func removeDescriptor(pool []*tserverset.Descriptor, id string) []*tserverset.Descriptor {
	out := pool[:0]
	for _, d := range pool {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}

func (a *Assigner) unionCandidates(blockSet []blockCandidates) []*tserverset.Descriptor {
	seen := make(map[string]*tserverset.Descriptor)
	for _, bc := range blockSet {
		for _, d := range bc.ts {
			seen[d.ID] = d
		}
	}
	out := make([]*tserverset.Descriptor, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	return out
}

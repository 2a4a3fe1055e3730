package split

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/syscatalog"
	"github.com/cuemby/warren/pkg/tserverset"
)

const numSplitParts = 2

// SplitKeyFetcher is the narrow surface Splitter needs from the async task
// framework (C8) to issue AsyncGetTabletSplitKey — satisfied by
// pkg/tasks.Runner, or nil in tests that drive DoSplitTablet directly.
type SplitKeyFetcher interface {
	GetTabletSplitKey(ctx context.Context, tablet *entity.TabletInfo, leaderTServerID string) (tserverset.GetSplitKeyResponse, error)
}

// TaskScheduler is the narrow fan-out interface Splitter needs to issue
// AsyncSplitTablet once the children are registered, following the same
// nil-is-a-no-op contract as catalog.TaskScheduler/assignment.ReplicaTaskScheduler.
type TaskScheduler interface {
	ScheduleSplitTablet(tablet *entity.TabletInfo, leaderTServerID string, childIDs [2]string, encodedKey, partitionKey string)
}

// Splitter drives SplitTablet/DoSplitTablet (§4.9).
type Splitter struct {
	manager *catalog.Manager
	fetcher SplitKeyFetcher
	sched   TaskScheduler
	opts    Options
	logger  zerolog.Logger
}

// NewSplitter wires a splitter against manager's catalog state. fetcher and
// sched may both be nil, in which case SplitTablet validates and stops
// (no RPC to fetch a key from), while DoSplitTablet remains directly
// callable for tests that already have an encoded/partition key in hand.
func NewSplitter(m *catalog.Manager, fetcher SplitKeyFetcher, sched TaskScheduler, opts Options) *Splitter {
	return &Splitter{
		manager: m,
		fetcher: fetcher,
		sched:   sched,
		opts:    opts,
		logger:  log.WithComponent("split"),
	}
}

// SplitTablet validates tabletID as a split candidate, fetches its split
// key from the current leader, and hands off to DoSplitTablet.
func (s *Splitter) SplitTablet(ctx context.Context, tabletID string) error {
	tl := s.manager.Tablet(tabletID)
	if tl == nil {
		return catalogerr.New(catalogerr.NotFound, "tablet %s not found", tabletID)
	}
	table := s.manager.Table(tl.LockForRead().TableID)
	if table == nil {
		return catalogerr.New(catalogerr.NotFound, "owning table for tablet %s not found", tabletID)
	}
	if err := ValidateSplitCandidate(table, tl, s.opts); err != nil {
		return err
	}

	leader, ok := tl.GetLeader()
	if !ok {
		return catalogerr.New(catalogerr.IllegalState, "tablet %s has no known leader", tabletID)
	}
	if s.fetcher == nil {
		return nil
	}

	resp, err := s.fetcher.GetTabletSplitKey(ctx, tl, leader)
	if err != nil {
		return fmt.Errorf("get tablet split key: %w", err)
	}
	return s.DoSplitTablet(table, tl, resp.EncodedKey, resp.PartitionKey)
}

// DoSplitTablet implements the 5-step split commit sequence (§4.9). It
// acquires the table write lock before the tablet write lock (same nesting
// order as the DDL engine's own mutations) and holds both across the whole
// validate-compute-persist sequence, so the re-validation in step 2 reads
// the already-locked dirty payloads directly rather than re-entering
// LockForRead (these wrappers' mutexes are not reentrant).
func (s *Splitter) DoSplitTablet(table *entity.TableInfo, source *entity.TabletInfo, encodedKey, partitionKey string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SplitDuration)

	tpb := table.LockForWrite()
	spb := source.LockForWrite()

	if err := revalidateLocked(tpb, spb, s.opts); err != nil {
		source.AbortMutation()
		table.AbortMutation()
		return err
	}

	if len(spb.SplitTabletIDs) >= numSplitParts {
		// Already split (idempotent retry of a prior call); nothing to do.
		source.AbortMutation()
		table.AbortMutation()
		return nil
	}

	// Step 3: bisect the source partition at partitionKey into exactly two
	// children.
	childPartitions := [numSplitParts]entity.Partition{
		{PartitionKeyStart: spb.Partition.PartitionKeyStart, PartitionKeyEnd: partitionKey},
		{PartitionKeyStart: partitionKey, PartitionKeyEnd: spb.Partition.PartitionKeyEnd},
	}

	// Step 4: register any child slot not already present, carrying the
	// parent's committed consensus state and replica set forward.
	children := make([]*entity.TabletInfo, 0, numSplitParts)
	now := time.Now()
	for i := 0; i < numSplitParts; i++ {
		if i < len(spb.SplitTabletIDs) {
			continue
		}
		replicas := make(map[string]entity.Replica, len(spb.ReplicaLocations))
		for id, r := range spb.ReplicaLocations {
			r.State = entity.ReplicaStarting
			r.TimeUpdated = now
			replicas[id] = r
		}
		child := entity.NewTabletInfo(&entity.TabletPB{
			ID:                      uuid.NewString(),
			TableID:                 spb.TableID,
			TableIDs:                append([]string(nil), spb.TableIDs...),
			Partition:               childPartitions[i],
			State:                   entity.TabletCreating,
			CommittedConsensusState: spb.CommittedConsensusState,
			ReplicaLocations:        replicas,
			SplitDepth:              spb.SplitDepth + 1,
			SplitParentTabletID:     spb.ID,
			CreatingStartedAt:       now,
			CreatedAt:               now,
		})
		children = append(children, child)
		spb.SplitTabletIDs = append(spb.SplitTabletIDs, child.ID())
	}

	tpb.PartitionListVersion++

	entities := make([]syscatalog.Entity, 0, 2+len(children))
	entities = append(entities, tpb, spb)
	for _, c := range children {
		entities = append(entities, c.LockForRead())
	}
	if err := s.manager.Gateway().Upsert(s.manager.UpsertTerm(), entities...); err != nil {
		source.AbortMutation()
		table.AbortMutation()
		return fmt.Errorf("persist split tablets: %w", err)
	}

	leaderUUID := spb.CommittedConsensusState.LeaderUUID
	parentPartitionStart := spb.Partition.PartitionKeyStart

	source.Commit()
	table.Commit()

	// Install the children into the table's tablet set: child 0 shares the
	// parent's partition_key_start slot (the parent moves to the inactive
	// set, retained until background GC/snapshot retention releases it),
	// child 1 occupies the new slot at partitionKey.
	if len(children) > 0 {
		table.ReplaceTablet(parentPartitionStart, source, children[0])
		s.manager.RegisterTabletLocked(table, parentPartitionStart, children[0])
		if len(children) > 1 {
			table.AddTablet(partitionKey, children[1])
			s.manager.RegisterTabletLocked(table, partitionKey, children[1])
		}
	}

	// Step 5: schedule AsyncSplitTablet to the source leader with the
	// child ids.
	if s.sched != nil && len(children) == numSplitParts {
		s.sched.ScheduleSplitTablet(source, leaderUUID, [2]string{children[0].ID(), children[1].ID()}, encodedKey, partitionKey)
	}

	return nil
}

// revalidateLocked re-applies ValidateSplitCandidate's checks against
// already-locked dirty payloads (the catalog may have changed between
// SplitTablet's initial check and DoSplitTablet's callback).
func revalidateLocked(tpb *entity.TablePB, spb *entity.TabletPB, opts Options) error {
	if tpb.CoveredBySnapshotSchedule && !opts.AllowSplitOfPitrCoveredTable {
		return catalogerr.New(catalogerr.SplitOrBackfillInProgress, "table %s is covered by a snapshot schedule", tpb.ID)
	}
	if tpb.XClusterReplicated && !opts.AllowSplitOfXClusterTable {
		return catalogerr.New(catalogerr.SplitOrBackfillInProgress, "table %s is xCluster-replicated", tpb.ID)
	}
	if tpb.IsTransactionStatusTable || tpb.Colocated || tpb.TableType == entity.DatabaseRedis {
		return catalogerr.New(catalogerr.NotSupported, "table %s is not splittable", tpb.ID)
	}
	if spb.State != entity.TabletRunning {
		return catalogerr.New(catalogerr.IllegalState, "tablet %s is not RUNNING", spb.ID)
	}
	if spb.MayHaveOrphanedPostSplitData {
		return catalogerr.New(catalogerr.IllegalState, "tablet %s may have orphaned post-split data", spb.ID)
	}
	return nil
}

// Package split implements the tablet split pipeline (spec.md §4.9):
// candidate validation, phase-based split gating, and the split RPC
// issuance/registration sequence run when a tablet crosses its size
// threshold.
package split

import (
	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
)

// Options toggles the two conditional ValidateSplitCandidate rejections
// that real deployments sometimes need to override explicitly (§4.9 "unless
// explicitly enabled").
type Options struct {
	AllowSplitOfPitrCoveredTable  bool
	AllowSplitOfXClusterTable     bool
	MaxTabletsPerTable            int
}

// DefaultOptions mirrors the teacher's DefaultConfig-style constructors
// (e.g. health.DefaultConfig) for a gating policy with sane defaults.
func DefaultOptions() Options {
	return Options{MaxTabletsPerTable: 256}
}

// ValidateSplitCandidate rejects a tablet per §4.9's 8 exclusion rules.
func ValidateSplitCandidate(table *entity.TableInfo, tablet *entity.TabletInfo, opts Options) error {
	tpb := table.LockForRead()

	if tpb.CoveredBySnapshotSchedule && !opts.AllowSplitOfPitrCoveredTable {
		return catalogerr.New(catalogerr.SplitOrBackfillInProgress, "table %s is covered by a snapshot schedule", tpb.ID)
	}
	if tpb.XClusterReplicated && !opts.AllowSplitOfXClusterTable {
		return catalogerr.New(catalogerr.SplitOrBackfillInProgress, "table %s is xCluster-replicated", tpb.ID)
	}
	if tpb.IsTransactionStatusTable {
		return catalogerr.New(catalogerr.NotSupported, "transaction status tables cannot be split")
	}
	if tpb.Colocated {
		return catalogerr.New(catalogerr.NotSupported, "colocated tables cannot be split")
	}
	if tpb.TableType == entity.DatabaseRedis {
		return catalogerr.New(catalogerr.NotSupported, "YEDIS tables cannot be split")
	}
	if tablet.LockForRead().State != entity.TabletRunning {
		return catalogerr.New(catalogerr.IllegalState, "tablet %s is not RUNNING", tablet.ID())
	}
	max := opts.MaxTabletsPerTable
	if max <= 0 {
		max = DefaultOptions().MaxTabletsPerTable
	}
	if table.NumPartitions() >= max {
		return catalogerr.New(catalogerr.ReachedSplitLimit, "table %s is already at its split limit (%d tablets)", tpb.ID, max)
	}
	if table.IsBackfilling() {
		return catalogerr.New(catalogerr.SplitOrBackfillInProgress, "table %s is backfilling an index", tpb.ID)
	}
	return nil
}

// Thresholds is the per-node tablet-count-phased size gate of
// ShouldSplitValidCandidate (§4.9).
type Thresholds struct {
	LowPhaseShardCountPerNode  int
	HighPhaseShardCountPerNode int
	LowPhaseSizeThresholdBytes int64
	HighPhaseSizeThresholdBytes int64
	ForceSplitThresholdBytes   int64
}

// DefaultThresholds are the phase thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowPhaseShardCountPerNode:   8,
		HighPhaseShardCountPerNode:  24,
		LowPhaseSizeThresholdBytes:  512 << 20,  // 512 MiB
		HighPhaseSizeThresholdBytes: 10 << 30,   // 10 GiB
		ForceSplitThresholdBytes:    100 << 30,  // 100 GiB
	}
}

// ShouldSplitValidCandidate implements the per-node-tablet-count-phased
// size gate. sizeBytes is the tablet's on-disk size as most recently
// reported by a tserver heartbeat; perNodeTabletCount is the tablet count
// of the most heavily loaded node hosting one of this tablet's peers.
func ShouldSplitValidCandidate(tablet *entity.TabletInfo, sizeBytes int64, perNodeTabletCount int, th Thresholds) bool {
	if tablet.LockForRead().MayHaveOrphanedPostSplitData {
		return false
	}

	var threshold int64
	switch {
	case perNodeTabletCount < th.LowPhaseShardCountPerNode:
		threshold = th.LowPhaseSizeThresholdBytes
	case perNodeTabletCount < th.HighPhaseShardCountPerNode:
		threshold = th.HighPhaseSizeThresholdBytes
	default:
		threshold = th.ForceSplitThresholdBytes
	}
	return sizeBytes > threshold
}

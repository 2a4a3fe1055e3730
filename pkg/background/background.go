// Package background implements the C10 maintenance loops (spec.md §4.10):
// the deleted-table sweep, tablespace refresh, system.partitions rebuild,
// and leader-affinity step-down. Each runs on its own ticker, mirroring the
// spec's "(4) timers (one-shot repeating schedulers)" scheduling model
// rather than sharing a single period the way pkg/assignment's one pass
// does — the ticker/stopCh run loop shape itself is grounded in the
// teacher's pkg/scheduler/scheduler.go.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
)

// Config tunes the four independent sweep periods.
type Config struct {
	GCPeriod          time.Duration
	TablespacePeriod  time.Duration
	PartitionsPeriod  time.Duration
	AffinityPeriod    time.Duration
}

// DefaultConfig mirrors the teacher's DefaultConfig-style constructors.
func DefaultConfig() Config {
	return Config{
		GCPeriod:         5 * time.Second,
		TablespacePeriod: 30 * time.Second,
		PartitionsPeriod: 10 * time.Second,
		AffinityPeriod:   15 * time.Second,
	}
}

// Sweeper runs the four C10 maintenance loops against one Manager.
type Sweeper struct {
	manager *catalog.Manager
	source  TablespaceSource
	cfg     Config
	logger  zerolog.Logger

	partitionsMu sync.RWMutex
	partitions   []PartitionRow

	stopCh chan struct{}
}

// NewSweeper wires a Sweeper. source may be nil, in which case tablespace
// refresh is a permanent no-op (see TablespaceSource).
func NewSweeper(m *catalog.Manager, source TablespaceSource, cfg Config) *Sweeper {
	return &Sweeper{
		manager: m,
		source:  source,
		cfg:     cfg,
		logger:  log.WithComponent("background"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins all four independent sweep loops.
func (s *Sweeper) Start() {
	go s.loop("gc", s.cfg.GCPeriod, s.runGC)
	go s.loop("tablespace", s.cfg.TablespacePeriod, s.runTablespaceRefresh)
	go s.loop("partitions", s.cfg.PartitionsPeriod, s.runPartitionsRebuild)
	go s.loop("affinity", s.cfg.AffinityPeriod, s.runAffinityStepDown)
}

// Stop terminates every sweep loop.
func (s *Sweeper) Stop() { close(s.stopCh) }

func (s *Sweeper) loop(name string, period time.Duration, fn func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			timer := metrics.NewTimer()
			fn()
			timer.ObserveDurationVec(metrics.BackgroundSweepDuration, name)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) runGC() {
	if !s.manager.IsLeader() {
		return
	}
	transitioned, purged, err := CleanUpDeletedTables(s.manager)
	if err != nil {
		s.logger.Error().Err(err).Msg("deleted-table sweep failed")
		return
	}
	if transitioned > 0 || purged > 0 {
		s.logger.Info().Int("transitioned", transitioned).Int("purged", purged).Msg("deleted-table sweep")
	}
	refreshEntityMetrics(s.manager)
}

// refreshEntityMetrics recomputes catalog_entities_total (C1) from the
// current in-memory catalog state - namespaces and tables by their own
// State, tablets by their owning table's State, since tablets carry no
// independent lifecycle worth reporting separately.
func refreshEntityMetrics(m *catalog.Manager) {
	counts := map[[2]string]int{}
	for _, ns := range m.ListNamespaces() {
		counts[[2]string{"namespace", string(ns.LockForRead().State)}]++
	}
	for _, tbl := range m.ListTables() {
		state := tbl.LockForRead().State
		counts[[2]string{"table", string(state)}]++
		for range tbl.GetTablets(false) {
			counts[[2]string{"tablet", string(state)}]++
		}
	}
	metrics.EntitiesTotal.Reset()
	for key, n := range counts {
		metrics.EntitiesTotal.WithLabelValues(key[0], key[1]).Set(float64(n))
	}
}

func (s *Sweeper) runTablespaceRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := RefreshTablespaces(ctx, s.manager, s.source); err != nil {
		s.logger.Error().Err(err).Msg("tablespace refresh failed")
	}
}

func (s *Sweeper) runPartitionsRebuild() {
	rows := RebuildSystemPartitions(s.manager)
	s.partitionsMu.Lock()
	s.partitions = rows
	s.partitionsMu.Unlock()
}

// PartitionsSnapshot returns the most recently rebuilt system.partitions
// payload.
func (s *Sweeper) PartitionsSnapshot() []PartitionRow {
	s.partitionsMu.RLock()
	defer s.partitionsMu.RUnlock()
	return s.partitions
}

func (s *Sweeper) runAffinityStepDown() {
	if err := RunLeaderAffinityStepDown(s.manager); err != nil {
		s.logger.Error().Err(err).Msg("leader-affinity step-down failed")
	}
}

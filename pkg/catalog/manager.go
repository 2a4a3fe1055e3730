// Package catalog is the central orchestrator of the catalog manager: the
// Raft-replicated Manager (C4 leader lifecycle), the boot-time loaders (C3),
// and the DDL engine (C5). It owns every in-memory identity map the rest of
// the system reads against, guarded by the lock hierarchy spec.md §5
// describes: stateLock (lifecycle + leader_ready_term) -> leaderLock
// (read-held by ordinary ops, write-held only during election/catch-up) ->
// catalogMu (the identity maps themselves).
package catalog

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/syscatalog"
)

// LifecycleState is the closed state machine of §4.4.
type LifecycleState string

const (
	StateConstructed LifecycleState = "CONSTRUCTED"
	StateStarting    LifecycleState = "STARTING"
	StateRunning     LifecycleState = "RUNNING"
	StateClosing     LifecycleState = "CLOSING"
)

// Config configures a new Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// ElectionApplyTimeout bounds how long RunLeaderElectionSequence waits
	// for the replicated log to apply at the newly elected term (§4.4 step 1).
	ElectionApplyTimeout time.Duration
}

// Manager is the Raft-replicated catalog state machine plus every
// in-memory identity map the rest of the system (C6-C10, §6 RPC surface)
// reads and writes against.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *FSM
	gw   *syscatalog.Gateway

	stateMu sync.Mutex
	state   LifecycleState

	leaderLock      sync.RWMutex
	leaderReadyTerm int64

	catalogMu sync.Mutex

	namespacesByID   map[string]*entity.NamespaceInfo
	namespacesByName map[string]*entity.NamespaceInfo
	tablesByID       map[string]*entity.TableInfo
	tableNames       map[string]*entity.TableInfo // "namespace_id/name" -> table
	tabletMap        map[string]*entity.TabletInfo
	udtypesByID      map[string]*entity.UDTypeInfo
	tablegroupsByID  map[string]*entity.Tablegroup
	rolesByName      map[string]*entity.RoleInfo
	redisConfig      map[string]*entity.RedisConfigInfo
	clusterConfig    *entity.ClusterConfig
	ysqlCatalog      *entity.YsqlCatalogConfig

	electionApplyTimeout time.Duration

	scheduler TaskScheduler

	placementMu       sync.Mutex
	masterPlacements  map[string]entity.CloudInfo

	tablespaceMu sync.RWMutex
	tablespaces  *entity.YsqlTablespaceManager
}

// TaskScheduler is the narrow fan-out interface the DDL engine (C5) needs
// to kick off async per-replica tasks (C8): AsyncAlterTable, AsyncDeleteReplica,
// AsyncTruncate. It's satisfied by pkg/tasks once a cmd/master wires one in;
// a Manager with no scheduler set treats every fan-out as a no-op, which
// keeps CreateTable/DeleteTable/AlterTable usable standalone (e.g. in tests)
// before C8 is wired.
type TaskScheduler interface {
	ScheduleAlterTable(table *entity.TableInfo, tablet *entity.TabletInfo)
	ScheduleDeleteReplica(tablet *entity.TabletInfo, hideOnly bool)
	ScheduleTruncate(tablet *entity.TabletInfo)
}

// SetTaskScheduler wires the async task fan-out used by the DDL engine.
func (m *Manager) SetTaskScheduler(s TaskScheduler) { m.scheduler = s }

func (m *Manager) scheduleAlterTable(t *entity.TableInfo, tl *entity.TabletInfo) {
	if m.scheduler != nil {
		m.scheduler.ScheduleAlterTable(t, tl)
	}
}

func (m *Manager) scheduleDeleteReplica(tl *entity.TabletInfo, hideOnly bool) {
	if m.scheduler != nil {
		m.scheduler.ScheduleDeleteReplica(tl, hideOnly)
	}
}

func (m *Manager) scheduleTruncate(tl *entity.TabletInfo) {
	if m.scheduler != nil {
		m.scheduler.ScheduleTruncate(tl)
	}
}

// New constructs a Manager against a fresh or existing SysCatalog gateway.
func New(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	gw, err := syscatalog.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open syscatalog: %w", err)
	}

	timeout := cfg.ElectionApplyTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	m := &Manager{
		nodeID:               cfg.NodeID,
		bindAddr:             cfg.BindAddr,
		dataDir:              cfg.DataDir,
		gw:                   gw,
		state:                StateConstructed,
		electionApplyTimeout: timeout,

		namespacesByID:   make(map[string]*entity.NamespaceInfo),
		namespacesByName: make(map[string]*entity.NamespaceInfo),
		tablesByID:       make(map[string]*entity.TableInfo),
		tableNames:       make(map[string]*entity.TableInfo),
		tabletMap:        make(map[string]*entity.TabletInfo),
		udtypesByID:      make(map[string]*entity.UDTypeInfo),
		tablegroupsByID:  make(map[string]*entity.Tablegroup),
		rolesByName:      make(map[string]*entity.RoleInfo),
		redisConfig:      make(map[string]*entity.RedisConfigInfo),
		masterPlacements: make(map[string]entity.CloudInfo),
	}
	m.fsm = NewFSM(gw, m)

	return m, nil
}

// Gateway exposes the underlying SysCatalog gateway (used by pkg/security
// to wire the CA, and by cmd/master for shutdown).
func (m *Manager) Gateway() *syscatalog.Gateway { return m.gw }

func raftConfig(nodeID string) *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(nodeID)
	// Tuned for LAN edge deployments rather than raft's WAN-conservative
	// defaults: ~2-3s total failover instead of the default ~10s+.
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.CommitTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	return cfg
}

func (m *Manager) newRaft(cfg *raft.Config) (*raft.Raft, error) {
	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}
	return raft.NewRaft(cfg, m.fsm, logStore, stableStore, snapshotStore, transport)
}

// Bootstrap initializes a brand-new single-node Raft cluster and runs the
// leader-election sequence (§4.4) synchronously so the first master comes
// up RUNNING.
func (m *Manager) Bootstrap() error {
	cfg := raftConfig(m.nodeID)
	r, err := m.newRaft(cfg)
	if err != nil {
		return err
	}
	m.raft = r

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: cfg.LocalID, Address: raft.ServerAddress(m.bindAddr)}},
	})
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap raft cluster: %w", err)
	}

	return m.awaitLeadershipAndInitialize()
}

// Join starts raft for a node that will be added to an existing cluster by
// its leader (via pkg/rpc's JoinCluster RPC, out of this package's scope);
// it only stands up the local raft instance and waits to be contacted.
func (m *Manager) Join() error {
	cfg := raftConfig(m.nodeID)
	r, err := m.newRaft(cfg)
	if err != nil {
		return err
	}
	m.raft = r
	return nil
}

// awaitLeadershipAndInitialize blocks until this node becomes leader (true
// immediately after a single-node Bootstrap) and then runs the full §4.4
// election sequence.
func (m *Manager) awaitLeadershipAndInitialize() error {
	deadline := time.Now().Add(m.electionApplyTimeout)
	for time.Now().Before(deadline) {
		if m.raft.State() == raft.Leader {
			return m.RunLeaderElectionSequence()
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting to become leader")
}

// RunLeaderElectionSequence implements spec.md §4.4's 9-step election
// sequence. Bootstrap calls it directly for the single-node case; nothing
// watches raft's leader-change channel, so a later change of leadership
// does not rerun it.
func (m *Manager) RunLeaderElectionSequence() error {
	electedTerm := int64(m.raft.CurrentTerm())
	logger := log.WithComponent("catalog").With().Int64("term", electedTerm).Logger()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.LeaderLoadDuration)

	// Step 1: wait for the log to fully apply at the elected term.
	if err := m.waitForLogApply(); err != nil {
		logger.Warn().Err(err).Msg("abdicating: log did not apply before timeout")
		return err
	}

	// Step 2: verify the term hasn't moved on.
	if int64(m.raft.CurrentTerm()) != electedTerm {
		logger.Info().Msg("term changed during apply wait, aborting election sequence")
		return nil
	}

	// Step 3: acquire leader write-lock + catalog mutex.
	m.leaderLock.Lock()
	defer m.leaderLock.Unlock()
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	m.setState(StateStarting)

	// Step 4: abort stale tasks against the previous term's TableInfo set.
	for _, t := range m.tablesByID {
		t.AbortTasks()
		t.WaitTasksCompletion()
	}

	// Step 5: run loaders.
	m.gw.SetTerm(electedTerm)
	if err := m.runLoaders(); err != nil {
		return fmt.Errorf("run loaders: %w", err)
	}

	// Step 6: defaults (cluster config, system namespaces/tables, default roles).
	if err := m.initDefaults(electedTerm); err != nil {
		return fmt.Errorf("init defaults: %w", err)
	}

	// Step 7: first-run snapshot restore is environment-specific and left to
	// cmd/master (no first-run snapshot path is modeled at this layer).

	// Step 8: kick off idempotent YSQL initdb.
	if err := m.maybeRunInitdb(electedTerm); err != nil {
		return fmt.Errorf("ysql initdb: %w", err)
	}

	// Step 9: publish leader_ready_term.
	m.stateMu.Lock()
	m.leaderReadyTerm = electedTerm
	m.stateMu.Unlock()
	m.setState(StateRunning)

	metrics.RaftLeader.Set(1)
	metrics.RaftTerm.Set(float64(electedTerm))
	metrics.RaftAppliedIndex.Set(float64(m.raft.AppliedIndex()))
	logger.Info().Msg("leader election sequence complete")
	return nil
}

func (m *Manager) waitForLogApply() error {
	deadline := time.Now().Add(m.electionApplyTimeout)
	target := m.raft.LastIndex()
	for time.Now().Before(deadline) {
		if m.raft.AppliedIndex() >= target {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("log did not apply within %s", m.electionApplyTimeout)
}

// recordDDLMetrics is deferred at the top of each DDL entry point (C5) to
// emit catalog_ddl_op_duration_seconds and catalog_ddl_ops_total per
// spec.md §4.5/§4.6. err is read after the deferred call chain runs, so
// callers must use a named error return.
func recordDDLMetrics(op string, timer *metrics.Timer, err *error) {
	timer.ObserveDurationVec(metrics.DDLOpDuration, op)
	result := "ok"
	if *err != nil {
		result = "error"
	}
	metrics.DDLOpsTotal.WithLabelValues(op, result).Inc()
}

func (m *Manager) setState(s LifecycleState) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.state = s
}

// State returns the current lifecycle state.
func (m *Manager) State() LifecycleState {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// LeaderReadyTerm returns the term at which this node last completed the
// election sequence, or 0 if it never has.
func (m *Manager) LeaderReadyTerm() int64 {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.leaderReadyTerm
}

// IsLeader reports whether raft currently considers this node the leader.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// LeaderAddr returns the current raft leader's address.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	addr, _ := m.raft.LeaderWithID()
	return string(addr)
}

// CurrentTerm returns raft's current term.
func (m *Manager) CurrentTerm() int64 {
	if m.raft == nil {
		return 0
	}
	return int64(m.raft.CurrentTerm())
}

// SetTablespaceManager atomically replaces the tablespace placement
// snapshot (§4.10 tablespace refresh). A nil manager is valid and clears
// any prior snapshot.
func (m *Manager) SetTablespaceManager(tm *entity.YsqlTablespaceManager) {
	m.tablespaceMu.Lock()
	defer m.tablespaceMu.Unlock()
	m.tablespaces = tm
}

// TablespaceManager returns the current tablespace placement snapshot, or
// nil if none has been built yet.
func (m *Manager) TablespaceManager() *entity.YsqlTablespaceManager {
	m.tablespaceMu.RLock()
	defer m.tablespaceMu.RUnlock()
	return m.tablespaces
}

// NodeID returns this master's raft server id.
func (m *Manager) NodeID() string { return m.nodeID }

// SetMasterPlacement records the (cloud, region, zone) coordinate of a
// master peer, keyed by raft server id. The leader-affinity background pass
// (C10) reads it back to find an in-affinity peer to step down to; cmd/master
// does not call it, so no placement is recorded unless another caller sets one.
func (m *Manager) SetMasterPlacement(nodeID string, ci entity.CloudInfo) {
	m.placementMu.Lock()
	defer m.placementMu.Unlock()
	m.masterPlacements[nodeID] = ci
}

// MasterPlacement returns the recorded placement of a master peer, if any.
func (m *Manager) MasterPlacement(nodeID string) (entity.CloudInfo, bool) {
	m.placementMu.Lock()
	defer m.placementMu.Unlock()
	ci, ok := m.masterPlacements[nodeID]
	return ci, ok
}

// Peers returns the current raft configuration's server list.
func (m *Manager) Peers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, nil
	}
	f := m.raft.GetConfiguration()
	if err := f.Error(); err != nil {
		return nil, fmt.Errorf("get raft configuration: %w", err)
	}
	return f.Configuration().Servers, nil
}

// StepDownTo transfers sys-catalog leadership to the given peer (§4.10
// leader-affinity step-down).
func (m *Manager) StepDownTo(nodeID, addr string) error {
	if m.raft == nil {
		return catalogerr.New(catalogerr.IllegalState, "raft not initialized")
	}
	f := m.raft.LeadershipTransferToServer(raft.ServerID(nodeID), raft.ServerAddress(addr))
	if err := f.Error(); err != nil {
		return catalogerr.Wrap(catalogerr.IllegalState, err, "leadership transfer to %s", nodeID)
	}
	return nil
}

// Shutdown transitions to Closing, aborts outstanding tasks, and closes the
// underlying stores (§4.4 shutdown sequence).
func (m *Manager) Shutdown() error {
	m.setState(StateClosing)

	m.catalogMu.Lock()
	for _, t := range m.tablesByID {
		t.AbortTasks()
		t.WaitTasksCompletion()
	}
	m.catalogMu.Unlock()

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			log.WithComponent("catalog").Warn().Err(err).Msg("raft shutdown error")
		}
	}
	return m.gw.Close()
}

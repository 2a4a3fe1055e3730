package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
)

func newBootstrappedManager(t *testing.T) *catalog.Manager {
	t.Helper()
	m, err := catalog.New(catalog.Config{NodeID: "n1", BindAddr: "127.0.0.1:0", DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, m.Bootstrap())
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func createRunningTablet(t *testing.T, m *catalog.Manager) (*entity.TableInfo, *entity.TabletInfo) {
	t.Helper()
	ns, err := m.CreateNamespace(catalog.CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)
	tbl, err := m.CreateTable(catalog.CreateTableRequest{
		Name:        "users",
		NamespaceID: ns.LockForRead().ID,
		Schema: &entity.Schema{
			Columns:      []entity.Column{{ID: 0, Name: "id", DataType: "uuid", IsKey: true, IsHash: true}},
			NextColumnID: 1,
		},
		NumTablets: 1,
	})
	require.NoError(t, err)
	tl := tbl.GetTablets(false)[0]

	pb := tl.LockForWrite()
	pb.State = entity.TabletRunning
	pb.ReplicaLocations = map[string]entity.Replica{
		"ts1": {TServerID: "ts1", Role: entity.RoleLeader, MemberType: entity.MemberVoter, State: entity.ReplicaRunning},
		"ts2": {TServerID: "ts2", Role: entity.RoleFollower, MemberType: entity.MemberVoter, State: entity.ReplicaRunning},
		"ts3": {TServerID: "ts3", Role: entity.RoleFollower, MemberType: entity.MemberVoter, State: entity.ReplicaRunning},
	}
	pb.CommittedConsensusState = entity.ConsensusState{
		Term:       1,
		LeaderUUID: "ts1",
		Config: entity.RaftConfig{
			OpIDIndex: 1,
			Peers: []entity.RaftConfigPeer{
				{TServerID: "ts1", MemberType: entity.MemberVoter},
				{TServerID: "ts2", MemberType: entity.MemberVoter},
				{TServerID: "ts3", MemberType: entity.MemberVoter},
			},
		},
	}
	tl.Commit()

	return tbl, tl
}

func TestProcessTabletReportUnknownTabletIsNoOp(t *testing.T) {
	m := newBootstrappedManager(t)
	p := NewProcessor(m, nil)

	updates, err := p.ProcessTabletReport(context.Background(), TabletReport{
		TServerID: "ts1",
		UpdatedTablets: []ReportedTablet{
			{TabletID: "does-not-exist", ReportedState: entity.TabletRunning},
		},
	}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, updates.TabletsProcessed)
}

func TestProcessTabletReportAdvancesConsensusState(t *testing.T) {
	m := newBootstrappedManager(t)
	_, tl := createRunningTablet(t, m)
	p := NewProcessor(m, nil)

	newConfig := entity.RaftConfig{
		OpIDIndex: 2,
		Peers: []entity.RaftConfigPeer{
			{TServerID: "ts1", MemberType: entity.MemberVoter},
			{TServerID: "ts2", MemberType: entity.MemberVoter},
			{TServerID: "ts4", MemberType: entity.MemberVoter},
		},
	}

	_, err := p.ProcessTabletReport(context.Background(), TabletReport{
		TServerID: "ts1",
		UpdatedTablets: []ReportedTablet{
			{
				TabletID:      tl.ID(),
				ReportedState: entity.TabletRunning,
				IsLeader:      true,
				ConsensusState: &entity.ConsensusState{
					Term:       1,
					LeaderUUID: "ts1",
					Config:     newConfig,
				},
			},
		},
	}, time.Second)
	require.NoError(t, err)

	pb := tl.LockForRead()
	require.Equal(t, int64(2), pb.CommittedConsensusState.Config.OpIDIndex)
	require.Contains(t, pb.ReplicaLocations, "ts4")
	require.NotContains(t, pb.ReplicaLocations, "ts3")
}

func TestProcessTabletReportRejectsStaleTerm(t *testing.T) {
	m := newBootstrappedManager(t)
	_, tl := createRunningTablet(t, m)
	p := NewProcessor(m, nil)

	before := tl.LockForRead().CommittedConsensusState

	_, err := p.ProcessTabletReport(context.Background(), TabletReport{
		TServerID: "ts2",
		UpdatedTablets: []ReportedTablet{
			{
				TabletID:      tl.ID(),
				ReportedState: entity.TabletRunning,
				ConsensusState: &entity.ConsensusState{
					Term:   0,
					Config: entity.RaftConfig{OpIDIndex: 99},
				},
			},
		},
	}, time.Second)
	require.NoError(t, err)

	after := tl.LockForRead().CommittedConsensusState
	require.Equal(t, before.Term, after.Term)
	require.Equal(t, before.Config.OpIDIndex, after.Config.OpIDIndex)
}

func TestProcessTabletReportAdvancesSchemaVersionAndCompletesAlter(t *testing.T) {
	m := newBootstrappedManager(t)
	tbl, tl := createRunningTablet(t, m)

	wpb := tbl.LockForWrite()
	wpb.State = entity.TableAltering
	wpb.Version = 2
	tbl.Commit()

	p := NewProcessor(m, nil)
	_, err := p.ProcessTabletReport(context.Background(), TabletReport{
		TServerID: "ts1",
		UpdatedTablets: []ReportedTablet{
			{
				TabletID:       tl.ID(),
				ReportedState:  entity.TabletRunning,
				IsLeader:       true,
				SchemaVersions: map[string]uint32{tbl.LockForRead().ID: 2},
			},
		},
	}, time.Second)
	require.NoError(t, err)

	require.Equal(t, entity.TableRunning, tbl.LockForRead().State)
	require.Equal(t, uint32(2), tl.LockForRead().ReportedSchemaVersion[tbl.LockForRead().ID])
}

func TestProcessTabletReportTruncatesUnderDeadlinePressure(t *testing.T) {
	m := newBootstrappedManager(t)
	_, tl := createRunningTablet(t, m)
	p := NewProcessor(m, nil)
	p.batchSize = 1

	updates, err := p.ProcessTabletReport(context.Background(), TabletReport{
		TServerID: "ts1",
		UpdatedTablets: []ReportedTablet{
			{TabletID: tl.ID(), ReportedState: entity.TabletRunning},
		},
	}, time.Nanosecond)
	require.NoError(t, err)
	require.True(t, updates.ProcessingTruncated)
}

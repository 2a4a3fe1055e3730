package split

import (
	"testing"

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
		Name:        "events",
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
	pb.Partition = entity.Partition{PartitionKeyStart: "", PartitionKeyEnd: ""}
	pb.ReplicaLocations = map[string]entity.Replica{
		"ts1": {TServerID: "ts1", Role: entity.RoleLeader, MemberType: entity.MemberVoter, State: entity.ReplicaRunning},
		"ts2": {TServerID: "ts2", Role: entity.RoleFollower, MemberType: entity.MemberVoter, State: entity.ReplicaRunning},
	}
	pb.CommittedConsensusState = entity.ConsensusState{
		Term:       1,
		LeaderUUID: "ts1",
		Config: entity.RaftConfig{
			OpIDIndex: 1,
			Peers: []entity.RaftConfigPeer{
				{TServerID: "ts1", MemberType: entity.MemberVoter},
				{TServerID: "ts2", MemberType: entity.MemberVoter},
			},
		},
	}
	tl.Commit()

	return tbl, tl
}

func TestValidateSplitCandidateRejectsNonRunning(t *testing.T) {
	m := newBootstrappedManager(t)
	tbl, tl := createRunningTablet(t, m)
	wpb := tl.LockForWrite()
	wpb.State = entity.TabletCreating
	tl.Commit()

	err := ValidateSplitCandidate(tbl, tl, DefaultOptions())
	require.Error(t, err)
}

func TestValidateSplitCandidateRejectsColocated(t *testing.T) {
	m := newBootstrappedManager(t)
	tbl, tl := createRunningTablet(t, m)
	wpb := tbl.LockForWrite()
	wpb.Colocated = true
	tbl.Commit()

	err := ValidateSplitCandidate(tbl, tl, DefaultOptions())
	require.Error(t, err)
}

func TestShouldSplitValidCandidatePhasesByNodeLoad(t *testing.T) {
	m := newBootstrappedManager(t)
	_, tl := createRunningTablet(t, m)
	th := DefaultThresholds()

	require.True(t, ShouldSplitValidCandidate(tl, th.LowPhaseSizeThresholdBytes+1, 2, th))
	require.False(t, ShouldSplitValidCandidate(tl, th.LowPhaseSizeThresholdBytes+1, 20, th))
	require.True(t, ShouldSplitValidCandidate(tl, th.HighPhaseSizeThresholdBytes+1, 20, th))
}

func TestShouldSplitValidCandidateRejectsOrphanedPostSplitData(t *testing.T) {
	m := newBootstrappedManager(t)
	_, tl := createRunningTablet(t, m)
	wpb := tl.LockForWrite()
	wpb.MayHaveOrphanedPostSplitData = true
	tl.Commit()

	th := DefaultThresholds()
	require.False(t, ShouldSplitValidCandidate(tl, th.ForceSplitThresholdBytes+1, 100, th))
}

func TestDoSplitTabletRegistersTwoChildren(t *testing.T) {
	m := newBootstrappedManager(t)
	tbl, tl := createRunningTablet(t, m)
	s := NewSplitter(m, nil, nil, DefaultOptions())

	require.NoError(t, s.DoSplitTablet(tbl, tl, "encoded-mid", "mid"))

	require.Equal(t, entity.TabletRunning, tl.LockForRead().State)
	require.Len(t, tl.LockForRead().SplitTabletIDs, 2)

	active := tbl.GetTablets(false)
	require.Len(t, active, 2)
	for _, child := range active {
		require.Equal(t, entity.TabletCreating, child.LockForRead().State)
		require.Equal(t, tl.ID(), child.LockForRead().SplitParentTabletID)
	}
}

func TestDoSplitTabletIsIdempotent(t *testing.T) {
	m := newBootstrappedManager(t)
	tbl, tl := createRunningTablet(t, m)
	s := NewSplitter(m, nil, nil, DefaultOptions())

	require.NoError(t, s.DoSplitTablet(tbl, tl, "encoded-mid", "mid"))
	childIDs := append([]string(nil), tl.LockForRead().SplitTabletIDs...)

	require.NoError(t, s.DoSplitTablet(tbl, tl, "encoded-mid", "mid"))
	require.Equal(t, childIDs, tl.LockForRead().SplitTabletIDs)
}

package background

import (
	"context"
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

func createTableWithOneTablet(t *testing.T, m *catalog.Manager, name string) (*entity.TableInfo, *entity.TabletInfo) {
	t.Helper()
	ns, err := m.CreateNamespace(catalog.CreateNamespaceRequest{Name: name + "-ns", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)
	tbl, err := m.CreateTable(catalog.CreateTableRequest{
		Name:        name,
		NamespaceID: ns.LockForRead().ID,
		Schema: &entity.Schema{
			Columns:      []entity.Column{{ID: 0, Name: "id", DataType: "uuid", IsKey: true, IsHash: true}},
			NextColumnID: 1,
		},
		NumTablets: 1,
	})
	require.NoError(t, err)
	tl := tbl.GetTablets(false)[0]
	wpb := tl.LockForWrite()
	wpb.State = entity.TabletRunning
	wpb.ReplicaLocations = map[string]entity.Replica{
		"ts1": {TServerID: "ts1", Role: entity.RoleLeader, MemberType: entity.MemberVoter, State: entity.ReplicaRunning},
	}
	tl.Commit()
	return tbl, tl
}

func TestCleanUpDeletedTablesTransitionsThenPurges(t *testing.T) {
	m := newBootstrappedManager(t)
	tbl, tl := createTableWithOneTablet(t, m, "events")
	tableID := tbl.ID()

	require.NoError(t, m.DeleteTable(tableID))
	require.Equal(t, entity.TableDeleting, tbl.LockForRead().State)

	// Not yet eligible: tablet hasn't reported DELETED.
	transitioned, purged, err := CleanUpDeletedTables(m)
	require.NoError(t, err)
	require.Equal(t, 0, transitioned)
	require.Equal(t, 0, purged)

	wpb := tl.LockForWrite()
	wpb.State = entity.TabletDeleted
	tl.Commit()

	transitioned, purged, err = CleanUpDeletedTables(m)
	require.NoError(t, err)
	require.Equal(t, 1, transitioned)
	require.Equal(t, 0, purged)
	require.Equal(t, entity.TableDeleted, tbl.LockForRead().State)

	transitioned, purged, err = CleanUpDeletedTables(m)
	require.NoError(t, err)
	require.Equal(t, 0, transitioned)
	require.Equal(t, 1, purged)
	require.Nil(t, m.Table(tableID))
}

func TestRebuildSystemPartitionsSortsByNamespaceTableAndKey(t *testing.T) {
	m := newBootstrappedManager(t)
	createTableWithOneTablet(t, m, "bravo")
	createTableWithOneTablet(t, m, "alpha")

	rows := RebuildSystemPartitions(m)
	require.Len(t, rows, 2)
	require.Equal(t, "alpha", rows[0].TableName)
	require.Equal(t, "bravo", rows[1].TableName)
	require.Equal(t, []string{"ts1"}, rows[0].ReplicaTServerIDs)
}

type fakeTablespaceSource struct {
	placements []entity.TablespacePlacement
}

func (f *fakeTablespaceSource) LoadTablespaces(context.Context) ([]entity.TablespacePlacement, error) {
	return f.placements, nil
}

func TestRefreshTablespacesNoopWithoutSource(t *testing.T) {
	m := newBootstrappedManager(t)
	require.NoError(t, RefreshTablespaces(context.Background(), m, nil))
	require.Nil(t, m.TablespaceManager())
}

func TestRefreshTablespacesBuildsLookableSnapshot(t *testing.T) {
	m := newBootstrappedManager(t)
	source := &fakeTablespaceSource{placements: []entity.TablespacePlacement{
		{TablespaceID: "ts-a", ReplicationInfo: entity.ReplicationInfo{LiveReplicas: entity.PlacementInfo{NumReplicas: 5}}},
	}}

	require.NoError(t, RefreshTablespaces(context.Background(), m, source))
	ri, ok := m.TablespaceManager().Lookup("ts-a")
	require.True(t, ok)
	require.Equal(t, 5, ri.LiveReplicas.NumReplicas)
}

func TestPickStepDownTargetNoopWhenAlreadyAffinitized(t *testing.T) {
	zone := entity.CloudInfo{Cloud: "aws", Region: "us-east", Zone: "1a"}
	_, ok := pickStepDownTarget("n1", zone, []entity.CloudInfo{zone}, map[string]entity.CloudInfo{"n2": {Cloud: "aws", Region: "us-west", Zone: "2a"}})
	require.False(t, ok)
}

func TestPickStepDownTargetFindsInAffinityPeer(t *testing.T) {
	self := entity.CloudInfo{Cloud: "aws", Region: "us-west", Zone: "2a"}
	affinitized := entity.CloudInfo{Cloud: "aws", Region: "us-east", Zone: "1a"}
	peers := map[string]entity.CloudInfo{
		"n2": {Cloud: "aws", Region: "us-west", Zone: "2b"},
		"n3": affinitized,
	}
	target, ok := pickStepDownTarget("n1", self, []entity.CloudInfo{affinitized}, peers)
	require.True(t, ok)
	require.Equal(t, "n3", target)
}

func TestPickStepDownTargetNoopWhenNoAffinityConfigured(t *testing.T) {
	self := entity.CloudInfo{Cloud: "aws", Region: "us-west", Zone: "2a"}
	_, ok := pickStepDownTarget("n1", self, nil, map[string]entity.CloudInfo{"n2": self})
	require.False(t, ok)
}

package assignment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/tserverset"
)

type fakeScheduler struct {
	created  map[string][]string
	elected  map[string]string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{created: make(map[string][]string), elected: make(map[string]string)}
}

func (f *fakeScheduler) ScheduleCreateReplica(tablet *entity.TabletInfo, tserverIDs []string) {
	f.created[tablet.ID()] = tserverIDs
}

func (f *fakeScheduler) ScheduleStartElection(tablet *entity.TabletInfo, tserverID string) {
	f.elected[tablet.ID()] = tserverID
}

func newBootstrappedManager(t *testing.T) *catalog.Manager {
	t.Helper()
	m, err := catalog.New(catalog.Config{NodeID: "n1", BindAddr: "127.0.0.1:0", DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, m.Bootstrap())
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func registryWithTservers(n int) *tserverset.Registry {
	r := tserverset.NewRegistry(time.Minute)
	for i := 0; i < n; i++ {
		r.Register(
			[]string{"ts1", "ts2", "ts3", "ts4", "ts5"}[i],
			"127.0.0.1:910"+[]string{"1", "2", "3", "4", "5"}[i],
			tserverset.CloudInfo{Cloud: "aws", Region: "us-east-1", Zone: "a"},
		)
	}
	return r
}

func TestRunOnceAssignsReplicasToPreparingTablet(t *testing.T) {
	m := newBootstrappedManager(t)
	tservers := registryWithTservers(3)
	sched := newFakeScheduler()
	a := NewAssigner(m, tservers, sched)

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
	require.Equal(t, entity.TabletPreparing, tl.LockForRead().State)

	require.NoError(t, a.RunOnce())

	pb := tl.LockForRead()
	require.Equal(t, entity.TabletCreating, pb.State)
	require.Len(t, pb.ReplicaLocations, 3)
	require.Len(t, sched.created[tl.ID()], 3)
}

func TestRunOnceRejectsWhenTooFewLiveTservers(t *testing.T) {
	m := newBootstrappedManager(t)
	tservers := registryWithTservers(1)
	a := NewAssigner(m, tservers, nil)

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

	require.NoError(t, a.RunOnce())
	require.Empty(t, tbl.GetTablets(false)[0].LockForRead().ReplicaLocations)
}

func TestReplaceOverdueTabletSkipsPostSplitChildren(t *testing.T) {
	m := newBootstrappedManager(t)
	tservers := registryWithTservers(3)
	a := NewAssigner(m, tservers, nil)
	a.creatingTimeout = 0

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
	pb.State = entity.TabletCreating
	pb.SplitParentTabletID = "some-parent"
	tl.Commit()

	require.NoError(t, a.RunOnce())

	require.Equal(t, entity.TabletCreating, tl.LockForRead().State)
	require.Empty(t, tl.LockForRead().ReplacementTabletID)
}

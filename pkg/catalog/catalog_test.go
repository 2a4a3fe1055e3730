package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
)

// newTestManager builds a Manager with a real SysCatalog gateway (no raft
// bootstrapped, so CurrentTerm()==0 — the zero value syscatalog.Gateway
// also qualifies writes against, so DDL calls work without standing up a
// cluster) plus the singleton config rows the DDL engine assumes are
// present once the loaders have run.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(Config{NodeID: "n1", BindAddr: "127.0.0.1:0", DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.gw.Close() })

	m.clusterConfig = entity.NewClusterConfig(&entity.ClusterConfigPB{
		ClusterUUID:     "test-cluster",
		ReplicationInfo: entity.ReplicationInfoConfig{LiveReplicas: entity.PlacementInfo{NumReplicas: 3}},
	})
	m.ysqlCatalog = entity.NewYsqlCatalogConfig(&entity.YsqlCatalogConfigPB{})
	return m
}

func testSchema() *entity.Schema {
	return &entity.Schema{
		Columns:      []entity.Column{{ID: 0, Name: "id", DataType: "uuid", IsKey: true, IsHash: true}},
		NextColumnID: 1,
	}
}

func mustCreateNamespace(t *testing.T, m *Manager, name string) *entity.NamespaceInfo {
	t.Helper()
	ns, err := m.CreateNamespace(CreateNamespaceRequest{Name: name, DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)
	return ns
}

func TestCreateNamespaceRejectsDuplicateName(t *testing.T) {
	m := newTestManager(t)
	mustCreateNamespace(t, m, "sys")

	_, err := m.CreateNamespace(CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseCQL})
	require.Error(t, err)
	require.Equal(t, catalogerr.AlreadyPresent, catalogerr.CodeOf(err))
}

func TestCreateNamespaceCommitsToRunning(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")
	require.Equal(t, entity.NamespaceRunning, ns.LockForRead().State)
}

func TestAlterNamespaceRename(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")

	err := m.AlterNamespace(AlterNamespaceRequest{ID: ns.LockForRead().ID, NewName: "sys2"})
	require.NoError(t, err)
	require.Equal(t, "sys2", ns.LockForRead().Name)

	_, stillIndexedByOldName := m.namespacesByName["sys"]
	require.False(t, stillIndexedByOldName)
	require.Contains(t, m.namespacesByName, "sys2")
}

func TestReservePgsqlOidsDisjointAndContiguous(t *testing.T) {
	m := newTestManager(t)
	ns, err := m.CreateNamespace(CreateNamespaceRequest{Name: "ysqldb", DatabaseType: entity.DatabasePGSQL})
	require.NoError(t, err)

	first1, last1, err := m.ReservePgsqlOids(ns.LockForRead().ID, 10)
	require.NoError(t, err)
	first2, last2, err := m.ReservePgsqlOids(ns.LockForRead().ID, 5)
	require.NoError(t, err)

	require.Equal(t, last1+1, first2)
	require.Greater(t, last2, first1)
}

func TestReservePgsqlOidsClampsAtMax(t *testing.T) {
	m := newTestManager(t)
	ns, err := m.CreateNamespace(CreateNamespaceRequest{Name: "ysqldb", DatabaseType: entity.DatabasePGSQL})
	require.NoError(t, err)

	info := m.namespacesByID[ns.LockForRead().ID]
	draft := info.LockForWrite()
	draft.NextPgOid = ^uint32(0) - 3
	require.NoError(t, m.gw.Upsert(m.CurrentTerm(), draft))
	info.Commit()

	_, last, err := m.ReservePgsqlOids(ns.LockForRead().ID, 10)
	require.NoError(t, err)
	require.Equal(t, ^uint32(0), last)
}

func TestCreateTableAllocatesHashTablets(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")

	tbl, err := m.CreateTable(CreateTableRequest{
		Name:        "users",
		NamespaceID: ns.LockForRead().ID,
		Schema:      testSchema(),
		NumTablets:  4,
	})
	require.NoError(t, err)
	require.Equal(t, entity.TableRunning, tbl.LockForRead().State)
	require.Len(t, tbl.GetTablets(false), 4)
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")
	req := CreateTableRequest{Name: "users", NamespaceID: ns.LockForRead().ID, Schema: testSchema(), NumTablets: 1}

	_, err := m.CreateTable(req)
	require.NoError(t, err)

	_, err = m.CreateTable(req)
	require.Error(t, err)
	require.Equal(t, catalogerr.AlreadyPresent, catalogerr.CodeOf(err))
}

func TestCreateTableColocatedSharesOneTablet(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "coloc")
	nsID := ns.LockForRead().ID

	first, err := m.CreateTable(CreateTableRequest{Name: "t1", NamespaceID: nsID, Schema: testSchema(), Colocated: true})
	require.NoError(t, err)
	second, err := m.CreateTable(CreateTableRequest{Name: "t2", NamespaceID: nsID, Schema: testSchema(), Colocated: true})
	require.NoError(t, err)

	require.Equal(t, first.GetColocatedTablet().ID(), second.GetColocatedTablet().ID())
}

func TestCreateTableIndexBumpsIndexedTableVersion(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")
	base, err := m.CreateTable(CreateTableRequest{Name: "users", NamespaceID: ns.LockForRead().ID, Schema: testSchema(), NumTablets: 2})
	require.NoError(t, err)

	versionBefore := base.LockForRead().Version

	idx, err := m.CreateTable(CreateTableRequest{
		Name:            "users_by_email",
		NamespaceID:     ns.LockForRead().ID,
		Schema:          testSchema(),
		NumTablets:      2,
		IndexedTableID:  base.LockForRead().ID,
		BackfillEnabled: true,
	})
	require.NoError(t, err)

	require.Greater(t, base.LockForRead().Version, versionBefore)
	require.Equal(t, entity.TableAltering, base.LockForRead().State)
	require.Len(t, base.LockForRead().Indexes, 1)
	require.Equal(t, idx.LockForRead().ID, base.LockForRead().Indexes[0].TableID)
}

func TestDeleteTableCascadesToIndexesFirst(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")
	nsID := ns.LockForRead().ID

	base, err := m.CreateTable(CreateTableRequest{Name: "users", NamespaceID: nsID, Schema: testSchema(), NumTablets: 1})
	require.NoError(t, err)
	idx, err := m.CreateTable(CreateTableRequest{
		Name: "users_idx", NamespaceID: nsID, Schema: testSchema(), NumTablets: 1,
		IndexedTableID: base.LockForRead().ID,
	})
	require.NoError(t, err)

	require.NoError(t, m.DeleteTable(base.LockForRead().ID))

	require.Equal(t, entity.TableDeleting, base.LockForRead().State)
	require.Equal(t, entity.TableDeleting, idx.LockForRead().State)
}

func TestAlterTableRejectsDroppingKeyColumn(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")
	tbl, err := m.CreateTable(CreateTableRequest{Name: "users", NamespaceID: ns.LockForRead().ID, Schema: testSchema(), NumTablets: 1})
	require.NoError(t, err)

	err = m.AlterTable(AlterTableRequest{
		TableID: tbl.LockForRead().ID,
		Steps:   []AlterStep{{Kind: AlterDropColumn, Name: "id"}},
	})
	require.Error(t, err)
	require.Equal(t, catalogerr.InvalidSchema, catalogerr.CodeOf(err))
}

func TestAlterTableAddColumnBumpsVersion(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")
	tbl, err := m.CreateTable(CreateTableRequest{Name: "users", NamespaceID: ns.LockForRead().ID, Schema: testSchema(), NumTablets: 1})
	require.NoError(t, err)
	versionBefore := tbl.LockForRead().Version

	err = m.AlterTable(AlterTableRequest{
		TableID: tbl.LockForRead().ID,
		Steps:   []AlterStep{{Kind: AlterAddColumn, Column: entity.Column{Name: "email", DataType: "text"}}},
	})
	require.NoError(t, err)

	pb := tbl.LockForRead()
	require.Greater(t, pb.Version, versionBefore)
	require.Equal(t, entity.TableAltering, pb.State)
	require.Len(t, pb.Schema.Columns, 2)
}

func TestCreateAndDeleteTablegroup(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "coloc")

	tgID, err := m.CreateTablegroup(CreateTablegroupRequest{NamespaceID: ns.LockForRead().ID})
	require.NoError(t, err)
	require.Len(t, m.ListTablegroups(ns.LockForRead().ID), 1)

	require.NoError(t, m.DeleteTablegroup(tgID))
	require.Empty(t, m.ListTablegroups(ns.LockForRead().ID))
}

func TestDeleteUDTypeRejectsWhenReferenced(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")
	nsID := ns.LockForRead().ID

	udt, err := m.CreateUDType(CreateUDTypeRequest{Name: "address", NamespaceID: nsID, FieldNames: []string{"city"}, FieldTypes: []string{"text"}})
	require.NoError(t, err)

	schema := testSchema()
	schema.Columns = append(schema.Columns, entity.Column{ID: 1, Name: "home", DataType: udt.LockForRead().ID})
	schema.NextColumnID = 2
	_, err = m.CreateTable(CreateTableRequest{Name: "people", NamespaceID: nsID, Schema: schema, NumTablets: 1})
	require.NoError(t, err)

	err = m.DeleteUDType(udt.LockForRead().ID)
	require.Error(t, err)
	require.Equal(t, catalogerr.IllegalState, catalogerr.CodeOf(err))
}

func TestLaunchBackfillIndexForTableAdvancesPermission(t *testing.T) {
	m := newTestManager(t)
	ns := mustCreateNamespace(t, m, "sys")
	nsID := ns.LockForRead().ID
	base, err := m.CreateTable(CreateTableRequest{Name: "users", NamespaceID: nsID, Schema: testSchema(), NumTablets: 1})
	require.NoError(t, err)
	idx, err := m.CreateTable(CreateTableRequest{
		Name: "users_idx", NamespaceID: nsID, Schema: testSchema(), NumTablets: 1,
		IndexedTableID: base.LockForRead().ID,
	})
	require.NoError(t, err)

	require.Equal(t, entity.PermissionDeleteOnly, idx.LockForRead().IndexPermission)

	require.NoError(t, m.LaunchBackfillIndexForTable(idx.LockForRead().ID))
	require.Equal(t, entity.PermissionWriteAndDelete, idx.LockForRead().IndexPermission)

	require.NoError(t, m.BackfillIndex(idx.LockForRead().ID))
	require.Equal(t, entity.PermissionDoBackfill, idx.LockForRead().IndexPermission)

	require.NoError(t, m.LaunchBackfillIndexForTable(idx.LockForRead().ID))
	require.Equal(t, entity.PermissionReadWriteAndDelete, idx.LockForRead().IndexPermission)
}

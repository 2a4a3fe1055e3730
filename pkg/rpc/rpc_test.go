package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/tserverset"
)

func newBootstrappedManager(t *testing.T) *catalog.Manager {
	t.Helper()
	m, err := catalog.New(catalog.Config{NodeID: "n1", BindAddr: "127.0.0.1:0", DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, m.Bootstrap())
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return &Server{manager: newBootstrappedManager(t), registry: tserverset.NewRegistry(30 * time.Second)}
}

func TestCreateAndGetNamespace(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	createResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)
	require.Equal(t, OK, createResp.Status)
	require.NotEmpty(t, createResp.ID)

	getResp, err := s.GetNamespaceInfo(ctx, &IsDoneRequest{ID: createResp.ID})
	require.NoError(t, err)
	require.Equal(t, OK, getResp.Status)
	require.Equal(t, "sys", getResp.Namespace.Name)

	listResp, err := s.ListNamespaces(ctx, &struct{}{})
	require.NoError(t, err)
	// "sys" plus the three default system namespaces Bootstrap creates.
	require.Len(t, listResp.Namespaces, 4)
}

func TestGetNamespaceInfoNotFound(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.GetNamespaceInfo(context.Background(), &IsDoneRequest{ID: "bogus"})
	require.NoError(t, err)
	require.Equal(t, string(statusFromError(notFound("x", "x")).Code), resp.Status.Code)
}

func TestDeleteNamespaceLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	createResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "todrop", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)

	delResp, err := s.DeleteNamespace(ctx, &IsDoneRequest{ID: createResp.ID})
	require.NoError(t, err)
	require.Equal(t, OK, delResp.Status)

	doneResp, err := s.IsDeleteNamespaceDone(ctx, &IsDoneRequest{ID: createResp.ID})
	require.NoError(t, err)
	require.True(t, doneResp.Done)
}

func createTestTable(t *testing.T, s *Server, nsID string) *CreateTableResponse {
	t.Helper()
	resp, err := s.CreateTable(context.Background(), &CreateTableRequest{
		Name:        "events",
		NamespaceID: nsID,
		Schema: &entity.Schema{
			Columns:      []entity.Column{{ID: 0, Name: "id", DataType: "uuid", IsKey: true, IsHash: true}},
			NextColumnID: 1,
		},
		NumTablets: 1,
	})
	require.NoError(t, err)
	require.Equal(t, OK, resp.Status)
	return resp
}

func TestCreateTableAndSchema(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	nsResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)

	tblResp := createTestTable(t, s, nsResp.ID)

	doneResp, err := s.IsCreateTableDone(ctx, &IsDoneRequest{ID: tblResp.ID})
	require.NoError(t, err)
	require.True(t, doneResp.Done)

	schemaResp, err := s.GetTableSchema(ctx, &IsDoneRequest{ID: tblResp.ID})
	require.NoError(t, err)
	require.Equal(t, OK, schemaResp.Status)
	require.Equal(t, "events", schemaResp.Table.Name)

	listResp, err := s.ListTables(ctx, &ListTablesRequest{NamespaceID: nsResp.ID})
	require.NoError(t, err)
	require.Len(t, listResp.Tables, 1)

	listEmpty, err := s.ListTables(ctx, &ListTablesRequest{NamespaceID: "other"})
	require.NoError(t, err)
	require.Empty(t, listEmpty.Tables)
}

func TestDeleteTableLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	nsResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)
	tblResp := createTestTable(t, s, nsResp.ID)

	delResp, err := s.DeleteTable(ctx, &IsDoneRequest{ID: tblResp.ID})
	require.NoError(t, err)
	require.Equal(t, OK, delResp.Status)

	doneResp, err := s.IsDeleteTableDone(ctx, &IsDoneRequest{ID: tblResp.ID})
	require.NoError(t, err)
	require.False(t, doneResp.Done, "table stays visible until the GC sweep purges it")
}

func TestGetBackfillJobsEmptyForPlainTable(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	nsResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)
	tblResp := createTestTable(t, s, nsResp.ID)

	jobsResp, err := s.GetBackfillJobs(ctx, &IsDoneRequest{ID: tblResp.ID})
	require.NoError(t, err)
	require.Equal(t, OK, jobsResp.Status)
	require.Empty(t, jobsResp.Jobs)
}

func TestTablegroupAndUDTypeLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	nsResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabasePGSQL})
	require.NoError(t, err)

	tgResp, err := s.CreateTablegroup(ctx, &CreateTablegroupRequest{NamespaceID: nsResp.ID})
	require.NoError(t, err)
	require.Equal(t, OK, tgResp.Status)

	listResp, err := s.ListTablegroups(ctx, &ListTablegroupsRequest{NamespaceID: nsResp.ID})
	require.NoError(t, err)
	require.Len(t, listResp.Tablegroups, 1)

	delResp, err := s.DeleteTablegroup(ctx, &IsDoneRequest{ID: tgResp.ID})
	require.NoError(t, err)
	require.Equal(t, OK, delResp.Status)

	utResp, err := s.CreateUDType(ctx, &CreateUDTypeRequest{
		Name: "addr", NamespaceID: nsResp.ID, FieldNames: []string{"street"}, FieldTypes: []string{"text"},
	})
	require.NoError(t, err)
	require.Equal(t, OK, utResp.Status)

	getResp, err := s.GetUDTypeInfo(ctx, &IsDoneRequest{ID: utResp.ID})
	require.NoError(t, err)
	require.Equal(t, "addr", getResp.Type.Name)

	listTypes, err := s.ListUDTypes(ctx, &ListUDTypesRequest{NamespaceID: nsResp.ID})
	require.NoError(t, err)
	require.Len(t, listTypes.Types, 1)

	delType, err := s.DeleteUDType(ctx, &IsDoneRequest{ID: utResp.ID})
	require.NoError(t, err)
	require.Equal(t, OK, delType.Status)
}

func TestReservePgsqlOidsAndYsqlCatalogConfig(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	nsResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabasePGSQL})
	require.NoError(t, err)

	oidResp, err := s.ReservePgsqlOids(ctx, &ReservePgsqlOidsRequest{NamespaceID: nsResp.ID, Count: 10})
	require.NoError(t, err)
	require.Equal(t, OK, oidResp.Status)
	require.Equal(t, oidResp.First+9, oidResp.Last)

	cfgResp, err := s.GetYsqlCatalogConfig(ctx, &struct{}{})
	require.NoError(t, err)
	require.Equal(t, OK, cfgResp.Status)

	doneResp, err := s.IsInitDbDone(ctx, &struct{}{})
	require.NoError(t, err)
	require.Equal(t, OK, doneResp.Status)
}

func TestRedisConfigGetSetRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	nsResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseRedis})
	require.NoError(t, err)

	getMiss, err := s.RedisConfigGet(ctx, &RedisConfigGetRequest{NamespaceID: nsResp.ID, Key: "maxmemory"})
	require.NoError(t, err)
	require.False(t, getMiss.Found)

	setResp, err := s.RedisConfigSet(ctx, &RedisConfigSetRequest{NamespaceID: nsResp.ID, Key: "maxmemory", Value: []byte("100mb")})
	require.NoError(t, err)
	require.Equal(t, OK, setResp.Status)

	getHit, err := s.RedisConfigGet(ctx, &RedisConfigGetRequest{NamespaceID: nsResp.ID, Key: "maxmemory"})
	require.NoError(t, err)
	require.True(t, getHit.Found)
	require.Equal(t, []byte("100mb"), getHit.Value)
}

func TestClusterConfigChangeRejectsStaleVersion(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	getResp, err := s.GetClusterConfig(ctx, &struct{}{})
	require.NoError(t, err)
	current := getResp.Config.Version

	changeResp, err := s.ChangeMasterClusterConfig(ctx, &ChangeMasterClusterConfigRequest{ExpectedVersion: current + 99})
	require.NoError(t, err)
	require.NotEqual(t, OK, changeResp.Status)

	okResp, err := s.ChangeMasterClusterConfig(ctx, &ChangeMasterClusterConfigRequest{ExpectedVersion: current})
	require.NoError(t, err)
	require.Equal(t, OK, okResp.Status)
}

func TestLoadBalanceMetricsIdleWithNoBlacklist(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	pctResp, err := s.GetLoadMovePercent(ctx, &struct{}{})
	require.NoError(t, err)
	require.Equal(t, 100, pctResp.Percent)

	balResp, err := s.IsLoadBalanced(ctx, &struct{}{})
	require.NoError(t, err)
	require.True(t, balResp.Value)

	idleResp, err := s.IsLoadBalancerIdle(ctx, &struct{}{})
	require.NoError(t, err)
	require.True(t, idleResp.Value)
}

func TestTServerRegisterAndListRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	regResp, err := s.RegisterTServer(ctx, &RegisterTServerRequest{
		ID: "ts1", RPCAddr: "127.0.0.1:9100", Placement: tserverset.CloudInfo{Cloud: "aws", Region: "us-east", Zone: "1a"},
	})
	require.NoError(t, err)
	require.Equal(t, OK, regResp.Status)

	listResp, err := s.ListTServers(ctx, &struct{}{})
	require.NoError(t, err)
	require.Len(t, listResp.TServers, 1)
	require.Equal(t, "ts1", listResp.TServers[0].ID)
}

func TestRPCsThatRequireOptionalCollaboratorsReportNotSupported(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	splitResp, err := s.SplitTablet(ctx, &IsDoneRequest{ID: "tablet-1"})
	require.NoError(t, err)
	require.NotEqual(t, OK, splitResp.Status)

	heartbeatResp, err := s.TSHeartbeat(ctx, &TSHeartbeatRequest{TServerID: "ts1"})
	require.NoError(t, err)
	require.NotEqual(t, OK, heartbeatResp.Status)

	bootstrapResp, err := s.StartRemoteBootstrap(ctx, &StartRemoteBootstrapRequest{TServerID: "ts1", TabletID: "tablet-1"})
	require.NoError(t, err)
	require.NotEqual(t, OK, bootstrapResp.Status)
}

func TestDumpMasterStateReportsCounts(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)

	resp, err := s.DumpMasterState(ctx, &struct{}{})
	require.NoError(t, err)
	require.Equal(t, OK, resp.Status)
	// The created namespace plus the three default system namespaces.
	require.Equal(t, 4, resp.NamespaceCount)
	require.True(t, resp.IsLeader)
}

func TestDdlLogFiltersBySinceSeq(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	nsResp, err := s.CreateNamespace(ctx, &CreateNamespaceRequest{Name: "sys", DatabaseType: entity.DatabaseCQL})
	require.NoError(t, err)
	tblResp := createTestTable(t, s, nsResp.ID)
	// CreateTable writes no DDL-log entry; DeleteTable does.
	_, err = s.DeleteTable(ctx, &IsDoneRequest{ID: tblResp.ID})
	require.NoError(t, err)

	resp, err := s.DdlLog(ctx, &DdlLogRequest{})
	require.NoError(t, err)
	require.Equal(t, OK, resp.Status)
	require.NotEmpty(t, resp.Entries)

	last := resp.Entries[len(resp.Entries)-1].Seq
	filtered, err := s.DdlLog(ctx, &DdlLogRequest{SinceSeq: last})
	require.NoError(t, err)
	require.Empty(t, filtered.Entries)
}

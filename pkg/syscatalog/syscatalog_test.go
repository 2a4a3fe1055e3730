package syscatalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
)

func openTestGateway(t *testing.T) *Gateway {
	t.Helper()
	gw, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	gw.SetTerm(1)
	return gw
}

func TestUpsertRejectsStaleTerm(t *testing.T) {
	gw := openTestGateway(t)

	ns := &entity.NamespacePB{ID: "ns1", Name: "db1"}
	err := gw.Upsert(2, ns)
	require.Error(t, err)
	require.Equal(t, catalogerr.NotLeaderCode, catalogerr.CodeOf(err))
}

func TestUpsertAndVisitRoundTrip(t *testing.T) {
	gw := openTestGateway(t)

	ns := &entity.NamespacePB{ID: "ns1", Name: "db1", DatabaseType: entity.DatabasePGSQL}
	require.NoError(t, gw.Upsert(1, ns))

	var seen []string
	err := gw.Visit("namespaces", func(id string, payload []byte) error {
		seen = append(seen, id)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ns1"}, seen)
}

func TestDeleteRemovesRow(t *testing.T) {
	gw := openTestGateway(t)

	tbl := &entity.TablePB{ID: "t1", Name: "foo"}
	require.NoError(t, gw.Upsert(1, tbl))
	require.NoError(t, gw.Delete(1, tbl))

	var seen int
	err := gw.Visit("tables", func(id string, payload []byte) error {
		seen++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, seen)
}

func TestDdlLogOrdering(t *testing.T) {
	gw := openTestGateway(t)

	require.NoError(t, gw.AppendDdlLog(1, DDLLogEntry{TableID: "t1", Action: "CREATE_TABLE"}))
	require.NoError(t, gw.AppendDdlLog(1, DDLLogEntry{TableID: "t1", Action: "ALTER_TABLE"}))

	var entries []DDLLogEntry
	require.NoError(t, gw.FetchDdlLog(&entries))
	require.Len(t, entries, 2)
	require.Equal(t, "CREATE_TABLE", entries[0].Action)
	require.Equal(t, "ALTER_TABLE", entries[1].Action)
}

func TestYsqlCatalogVersionIncrements(t *testing.T) {
	gw := openTestGateway(t)

	v1, err := gw.BumpYsqlCatalogVersion(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v1)

	v2, err := gw.BumpYsqlCatalogVersion(1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), v2)

	read, err := gw.ReadYsqlCatalogVersion()
	require.NoError(t, err)
	require.Equal(t, uint64(2), read)
}

func TestCAStoreRoundTrip(t *testing.T) {
	gw := openTestGateway(t)

	require.NoError(t, gw.SaveCA([]byte("root-ca-blob")))
	data, err := gw.GetCA()
	require.NoError(t, err)
	require.Equal(t, []byte("root-ca-blob"), data)
}

func TestCopyPgsqlTables(t *testing.T) {
	gw := openTestGateway(t)

	src := &entity.TablePB{ID: "src1", Name: "orig"}
	require.NoError(t, gw.Upsert(1, src))

	require.NoError(t, gw.CopyPgsqlTables(1, []string{"src1"}, []string{"dst1"}))

	var ids []string
	err := gw.Visit("tables", func(id string, payload []byte) error {
		ids = append(ids, id)
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"src1", "dst1"}, ids)
}

package background

import (
	"sort"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
)

// PartitionRow is one row of the system.partitions virtual table: a single
// tablet's current placement, the shape YSQL's information_schema-style
// introspection reads from (§4.10 "system.partitions rebuild").
type PartitionRow struct {
	TableID           string
	TableName         string
	NamespaceID       string
	TabletID          string
	PartitionKeyStart string
	PartitionKeyEnd   string
	State             entity.TabletState
	ReplicaTServerIDs []string
}

// RebuildSystemPartitions regenerates the system.partitions payload from
// the current catalog state: one row per active tablet of every
// non-DELETED table, sorted by (namespace name, table name, partition start)
// for stable pagination, with the namespace id breaking ties between
// namespaces of the same name.
func RebuildSystemPartitions(m *catalog.Manager) []PartitionRow {
	var rows []PartitionRow
	nsNames := make(map[string]string)
	for _, tbl := range m.ListTables() {
		tpb := tbl.LockForRead()
		if tpb.State == entity.TableDeleted {
			continue
		}
		if _, ok := nsNames[tpb.NamespaceID]; !ok {
			if ns := m.GetNamespaceInfo(tpb.NamespaceID); ns != nil {
				nsNames[tpb.NamespaceID] = ns.LockForRead().Name
			}
		}
		for _, tl := range tbl.GetTablets(false) {
			pb := tl.LockForRead()
			ids := make([]string, 0, len(pb.ReplicaLocations))
			for id := range pb.ReplicaLocations {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			rows = append(rows, PartitionRow{
				TableID:           tpb.ID,
				TableName:         tpb.Name,
				NamespaceID:       tpb.NamespaceID,
				TabletID:          pb.ID,
				PartitionKeyStart: pb.Partition.PartitionKeyStart,
				PartitionKeyEnd:   pb.Partition.PartitionKeyEnd,
				State:             pb.State,
				ReplicaTServerIDs: ids,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if ni, nj := nsNames[rows[i].NamespaceID], nsNames[rows[j].NamespaceID]; ni != nj {
			return ni < nj
		}
		if rows[i].NamespaceID != rows[j].NamespaceID {
			return rows[i].NamespaceID < rows[j].NamespaceID
		}
		if rows[i].TableName != rows[j].TableName {
			return rows[i].TableName < rows[j].TableName
		}
		return rows[i].PartitionKeyStart < rows[j].PartitionKeyStart
	})
	return rows
}

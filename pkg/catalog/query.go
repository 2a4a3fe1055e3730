package catalog

import "github.com/cuemby/warren/pkg/entity"

// ListTables returns every known table, the way the teacher's
// manager.ListServices()/ListNodes() hand callers a snapshot slice rather
// than the live identity map. Consumed by pkg/assignment and pkg/heartbeat,
// which must not reach into Manager's private maps directly.
func (m *Manager) ListTables() []*entity.TableInfo {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	out := make([]*entity.TableInfo, 0, len(m.tablesByID))
	for _, t := range m.tablesByID {
		out = append(out, t)
	}
	return out
}

// Table looks up one table by id, or nil if unknown.
func (m *Manager) Table(id string) *entity.TableInfo {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	return m.tablesByID[id]
}

// Tablet looks up one tablet by id across every table, or nil if unknown.
func (m *Manager) Tablet(id string) *entity.TabletInfo {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	return m.tabletMap[id]
}

// ClusterConfig exposes the singleton cluster configuration CoW wrapper,
// the base of the override > cluster replication-info resolution chain
// used by pkg/assignment's SelectReplicasForTablet step 1.
func (m *Manager) ClusterConfig() *entity.ClusterConfig {
	return m.clusterConfig
}

// ResolveReplicationInfo implements §4.6 step 1's full "override >
// tablespace > cluster" precedence: a table's own ReplicationInfo wins if
// set, else its TablespaceID is looked up in the snapshot pkg/background's
// tablespace refresh pass maintains, else the cluster default applies.
func (m *Manager) ResolveReplicationInfo(table *entity.TableInfo) entity.ReplicationInfo {
	pb := table.LockForRead()
	if pb.ReplicationInfo != nil {
		return *pb.ReplicationInfo
	}
	if pb.TablespaceID != "" {
		if ri, ok := m.TablespaceManager().Lookup(pb.TablespaceID); ok {
			return ri
		}
	}
	return entity.ReplicationInfo{
		LiveReplicas: m.clusterConfig.LockForRead().ReplicationInfo.LiveReplicas,
		ReadReplicas: m.clusterConfig.LockForRead().ReplicationInfo.ReadReplicas,
	}
}

// RegisterTabletLocked installs a freshly created tablet into both the
// owning table's tablet set and the manager's flat tabletMap, under
// catalogMu. Exported for pkg/assignment and pkg/split, which create new
// tablets (replacement-on-timeout clones, split children) outside the DDL
// engine's own CreateTable path.
func (m *Manager) RegisterTabletLocked(table *entity.TableInfo, partitionKeyStart string, tl *entity.TabletInfo) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	table.AddTablet(partitionKeyStart, tl)
	m.tabletMap[tl.ID()] = tl
}

// UpsertTerm is the current raft term, forwarded so pkg/assignment and
// pkg/heartbeat can term-qualify their own SysCatalog writes the same way
// the DDL engine does.
func (m *Manager) UpsertTerm() int64 { return m.CurrentTerm() }

package catalog

import (
	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
)

// ListNamespaces returns every known namespace, the same snapshot-slice
// contract ListTables uses so callers never reach into Manager's private
// maps directly.
func (m *Manager) ListNamespaces() []*entity.NamespaceInfo {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	out := make([]*entity.NamespaceInfo, 0, len(m.namespacesByID))
	for _, ns := range m.namespacesByID {
		out = append(out, ns)
	}
	return out
}

// GetNamespaceInfo looks up one namespace by id, or nil if unknown.
func (m *Manager) GetNamespaceInfo(id string) *entity.NamespaceInfo {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	return m.namespacesByID[id]
}

// ListUDTypes returns every known user-defined type.
func (m *Manager) ListUDTypes() []*entity.UDTypeInfo {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	out := make([]*entity.UDTypeInfo, 0, len(m.udtypesByID))
	for _, u := range m.udtypesByID {
		out = append(out, u)
	}
	return out
}

// GetUDTypeInfo looks up one user-defined type by id, or nil if unknown.
func (m *Manager) GetUDTypeInfo(id string) *entity.UDTypeInfo {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	return m.udtypesByID[id]
}

// RedisConfigGet reads a single Redis namespace-config row, or ok=false if
// unset (§4.3 redis_config).
func (m *Manager) RedisConfigGet(namespaceID, key string) (value []byte, ok bool) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	info, found := m.redisConfig[(&entity.RedisConfigPB{NamespaceID: namespaceID, Key: key}).EntityID()]
	if !found {
		return nil, false
	}
	return info.LockForRead().Value, true
}

// RedisConfigSet upserts a single Redis namespace-config row, persisting it
// to the SysCatalog before installing it in the in-memory map.
func (m *Manager) RedisConfigSet(namespaceID, key string, value []byte) error {
	pb := &entity.RedisConfigPB{NamespaceID: namespaceID, Key: key, Value: value}
	term := m.CurrentTerm()
	if err := m.gw.Upsert(term, pb); err != nil {
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist redis config %s/%s", namespaceID, key)
	}

	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	if existing, ok := m.redisConfig[pb.EntityID()]; ok {
		wpb := existing.LockForWrite()
		wpb.Value = value
		existing.Commit()
		return nil
	}
	m.redisConfig[pb.EntityID()] = entity.NewRedisConfigInfo(pb)
	return nil
}

// GetYsqlCatalogConfig exposes the singleton YSQL catalog bootstrap config
// (§3 YsqlCatalogConfig), read by the §6 GetYsqlCatalogConfig RPC.
func (m *Manager) GetYsqlCatalogConfig() *entity.YsqlCatalogConfig {
	return m.ysqlCatalog
}

// IsInitDbDone reports whether the cluster's initdb run has completed,
// backing the §6 IsInitDbDone RPC.
func (m *Manager) IsInitDbDone() (done bool, errMsg string) {
	pb := m.ysqlCatalog.LockForRead()
	return pb.InitdbDone, pb.InitdbError
}

// ChangeMasterClusterConfigRequest is the input of ChangeMasterClusterConfig
// (§6): a full replacement of the mutable parts of ClusterConfigPB, guarded
// by an optimistic-concurrency version check the way YugabyteDB's
// ChangeMasterClusterConfig RPC does.
type ChangeMasterClusterConfigRequest struct {
	ExpectedVersion uint32
	ReplicationInfo *entity.ReplicationInfoConfig
	ServerBlacklist *entity.Blacklist
	LeaderBlacklist *entity.Blacklist
}

// ChangeMasterClusterConfig applies a partial update to the singleton
// cluster configuration, rejecting stale writers via ExpectedVersion.
func (m *Manager) ChangeMasterClusterConfig(req ChangeMasterClusterConfigRequest) error {
	cc := m.clusterConfig
	current := cc.LockForRead()
	if req.ExpectedVersion != current.Version {
		return catalogerr.New(catalogerr.InvalidArgument,
			"expected cluster config version %d, have %d", req.ExpectedVersion, current.Version)
	}

	wpb := cc.LockForWrite()
	wpb.Version++
	if req.ReplicationInfo != nil {
		wpb.ReplicationInfo = *req.ReplicationInfo
	}
	if req.ServerBlacklist != nil {
		wpb.ServerBlacklist = *req.ServerBlacklist
	}
	if req.LeaderBlacklist != nil {
		wpb.LeaderBlacklist = *req.LeaderBlacklist
	}

	term := m.CurrentTerm()
	if err := m.gw.Upsert(term, wpb); err != nil {
		cc.AbortMutation()
		return catalogerr.Wrap(catalogerr.IllegalState, err, "persist cluster config")
	}
	cc.Commit()
	return nil
}

package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/entity"
)

var defaultSystemNamespaces = []string{"system", "system_schema", "system_auth"}

var defaultRoles = []entity.RolePB{
	{Name: "cassandra", CanLogin: true, IsSuperuser: true},
	{Name: "postgres", CanLogin: true, IsSuperuser: true},
}

// initDefaults implements §4.4 step 6: default cluster config, default
// system namespaces, and default roles. It's idempotent — callers run it on
// every election, so every step first checks whether the target already
// exists.
func (m *Manager) initDefaults(term int64) error {
	if err := m.initDefaultClusterConfig(term); err != nil {
		return err
	}
	if err := m.initDefaultNamespaces(term); err != nil {
		return err
	}
	if err := m.initDefaultRoles(term); err != nil {
		return err
	}
	return nil
}

func (m *Manager) initDefaultClusterConfig(term int64) error {
	if m.clusterConfig.LockForRead().ClusterUUID != "" {
		return nil
	}

	cfg := m.clusterConfig.LockForWrite()
	cfg.ClusterUUID = uuid.NewString()
	cfg.Version = 1
	cfg.ReplicationInfo.LiveReplicas.NumReplicas = 3

	if err := m.gw.Upsert(term, cfg); err != nil {
		m.clusterConfig.AbortMutation()
		return fmt.Errorf("persist default cluster config: %w", err)
	}
	m.clusterConfig.Commit()
	return nil
}

func (m *Manager) initDefaultNamespaces(term int64) error {
	for _, name := range defaultSystemNamespaces {
		if _, ok := m.namespacesByName[name]; ok {
			continue
		}
		pb := &entity.NamespacePB{
			ID:           uuid.NewString(),
			Name:         name,
			DatabaseType: entity.DatabaseCQL,
			State:        entity.NamespaceRunning,
		}
		if err := m.gw.Upsert(term, pb); err != nil {
			return fmt.Errorf("persist default namespace %s: %w", name, err)
		}
		info := entity.NewNamespaceInfo(pb)
		m.namespacesByID[pb.ID] = info
		m.namespacesByName[pb.Name] = info
	}
	return nil
}

func (m *Manager) initDefaultRoles(term int64) error {
	for _, role := range defaultRoles {
		if _, ok := m.rolesByName[role.Name]; ok {
			continue
		}
		pb := role
		if err := m.gw.Upsert(term, &pb); err != nil {
			return fmt.Errorf("persist default role %s: %w", role.Name, err)
		}
		m.rolesByName[pb.Name] = entity.NewRoleInfo(&pb)
	}
	return nil
}

// maybeRunInitdb implements §4.4 step 8: kick off YSQL initdb exactly once,
// tracked by the idempotent initdb_done flag on the singleton
// YsqlCatalogConfig row. The actual initdb invocation is an external
// process concern left to cmd/master; this only manages the flag so a
// restarted leader doesn't repeat it.
func (m *Manager) maybeRunInitdb(term int64) error {
	if m.ysqlCatalog.LockForRead().InitdbDone {
		return nil
	}

	cfg := m.ysqlCatalog.LockForWrite()
	cfg.InitdbDone = true
	cfg.Version++

	if err := m.gw.Upsert(term, cfg); err != nil {
		m.ysqlCatalog.AbortMutation()
		return fmt.Errorf("persist initdb_done: %w", err)
	}
	m.ysqlCatalog.Commit()
	return nil
}

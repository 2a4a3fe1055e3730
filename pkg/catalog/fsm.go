package catalog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/syscatalog"
)

// Command is one Raft log entry: an opaque operation name plus its
// JSON-encoded payload, the same envelope the teacher's manager.Command
// uses.
type Command struct {
	Op   string          `json:"op"`
	Term int64           `json:"term"`
	Data json.RawMessage `json:"data"`
}

// FSM applies committed Raft log entries to the SysCatalog gateway. It
// mirrors the teacher's WarrenFSM (one log-entry-per-mutation, switched by
// Op) but delegates persistence to syscatalog.Gateway's generic Upsert/
// Delete instead of per-type store methods.
type FSM struct {
	gw *syscatalog.Gateway
	m  *Manager
}

// NewFSM wraps a gateway and the owning Manager. Apply writes only to the
// gateway; it does not update the Manager's in-memory maps, which are
// rebuilt from the gateway when the loaders run.
func NewFSM(gw *syscatalog.Gateway, m *Manager) *FSM {
	return &FSM{gw: gw, m: m}
}

// Apply is invoked by raft once a log entry commits on a quorum.
func (f *FSM) Apply(l *raft.Log) interface{} {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	switch cmd.Op {
	case "upsert_namespace":
		var pb entity.NamespacePB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	case "delete_namespace":
		var pb entity.NamespacePB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Delete(cmd.Term, &pb)

	case "upsert_table":
		var pb entity.TablePB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	case "delete_table":
		var pb entity.TablePB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Delete(cmd.Term, &pb)

	case "upsert_tablet":
		var pb entity.TabletPB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	case "delete_tablet":
		var pb entity.TabletPB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Delete(cmd.Term, &pb)

	case "upsert_udtype":
		var pb entity.UDTypePB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	case "delete_udtype":
		var pb entity.UDTypePB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Delete(cmd.Term, &pb)

	case "upsert_tablegroup":
		var pb entity.TablegroupPB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	case "delete_tablegroup":
		var pb entity.TablegroupPB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Delete(cmd.Term, &pb)

	case "upsert_role":
		var pb entity.RolePB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	case "upsert_redis_config":
		var pb entity.RedisConfigPB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	case "upsert_cluster_config":
		var pb entity.ClusterConfigPB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	case "upsert_ysql_catalog_config":
		var pb entity.YsqlCatalogConfigPB
		if err := json.Unmarshal(cmd.Data, &pb); err != nil {
			return err
		}
		return f.gw.Upsert(cmd.Term, &pb)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot hands raft a point-in-time copy of every bucket, grounded on the
// teacher's WarrenSnapshot (one exported slice per kind, JSON-encoded
// wholesale).
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	snap := &Snapshot{}

	kinds := []struct {
		name string
		dst  *[]json.RawMessage
	}{
		{"namespaces", &snap.Namespaces},
		{"tables", &snap.Tables},
		{"tablets", &snap.Tablets},
		{"udtypes", &snap.UDTypes},
		{"tablegroups", &snap.Tablegroups},
		{"roles", &snap.Roles},
		{"sys_config", &snap.SysConfig},
		{"redis_config", &snap.RedisConfig},
	}
	for _, k := range kinds {
		var rows []json.RawMessage
		err := f.gw.Visit(k.name, func(id string, payload []byte) error {
			rows = append(rows, append(json.RawMessage(nil), payload...))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", k.name, err)
		}
		*k.dst = rows
	}

	return snap, nil
}

// Restore replaces the gateway's contents with a previously-taken snapshot,
// writing it back at whatever term is current when the restore runs (raft
// only calls Restore before this node can serve writes at a new term).
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	term := f.gw.CurrentTerm()

	restore := func(kind string, rows []json.RawMessage, newEntity func() syscatalog.Entity) error {
		for _, raw := range rows {
			e := newEntity()
			if err := json.Unmarshal(raw, e); err != nil {
				return err
			}
			if err := f.gw.Upsert(term, e); err != nil {
				return err
			}
		}
		return nil
	}

	if err := restore("namespaces", snap.Namespaces, func() syscatalog.Entity { return &entity.NamespacePB{} }); err != nil {
		return err
	}
	if err := restore("tables", snap.Tables, func() syscatalog.Entity { return &entity.TablePB{} }); err != nil {
		return err
	}
	if err := restore("tablets", snap.Tablets, func() syscatalog.Entity { return &entity.TabletPB{} }); err != nil {
		return err
	}
	if err := restore("udtypes", snap.UDTypes, func() syscatalog.Entity { return &entity.UDTypePB{} }); err != nil {
		return err
	}
	if err := restore("tablegroups", snap.Tablegroups, func() syscatalog.Entity { return &entity.TablegroupPB{} }); err != nil {
		return err
	}
	if err := restore("roles", snap.Roles, func() syscatalog.Entity { return &entity.RolePB{} }); err != nil {
		return err
	}
	if err := restore("redis_config", snap.RedisConfig, func() syscatalog.Entity { return &entity.RedisConfigPB{} }); err != nil {
		return err
	}
	for _, raw := range snap.SysConfig {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return err
		}
		var e syscatalog.Entity = &entity.YsqlCatalogConfigPB{}
		if _, ok := probe["cluster_uuid"]; ok {
			e = &entity.ClusterConfigPB{}
		}
		if err := restore("sys_config", []json.RawMessage{raw}, func() syscatalog.Entity { return e }); err != nil {
			return err
		}
	}

	return nil
}

// Snapshot is the wire format of an FSM snapshot: every bucket's rows,
// still JSON-encoded (avoids double (de)serialization round trips).
type Snapshot struct {
	Namespaces  []json.RawMessage `json:"namespaces"`
	Tables      []json.RawMessage `json:"tables"`
	Tablets     []json.RawMessage `json:"tablets"`
	UDTypes     []json.RawMessage `json:"udtypes"`
	Tablegroups []json.RawMessage `json:"tablegroups"`
	Roles       []json.RawMessage `json:"roles"`
	SysConfig   []json.RawMessage `json:"sys_config"`
	RedisConfig []json.RawMessage `json:"redis_config"`
}

// Persist writes the snapshot to raft's sink.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op: the snapshot holds no resources beyond Go memory.
func (s *Snapshot) Release() {}

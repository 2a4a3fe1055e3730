// Package syscatalog is the durable gateway onto the catalog's persisted
// state (spec.md §4.2 SysCatalog). It is the only component that touches
// disk: every other component works against in-memory entity.* wrappers and
// calls through here to make a mutation durable before committing the
// in-memory copy, following the same bucket-per-kind BoltDB discipline the
// teacher's pkg/storage.BoltStore uses, generalized to a single Upsert/
// Delete pair keyed by entity kind instead of one method pair per type.
package syscatalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/warren/pkg/catalogerr"
)

var (
	bucketNamespaces   = []byte("namespaces")
	bucketTables       = []byte("tables")
	bucketTablets      = []byte("tablets")
	bucketUDTypes      = []byte("udtypes")
	bucketTablegroups  = []byte("tablegroups")
	bucketRoles        = []byte("roles")
	bucketSysConfig    = []byte("sys_config")
	bucketRedisConfig  = []byte("redis_config")
	bucketDDLLog       = []byte("ddl_log")
	bucketCA           = []byte("ca")
	bucketPgTablespace = []byte("pg_tablespace")
	bucketPgClass      = []byte("pg_class")
	bucketPgNamespace  = []byte("pg_namespace")
	bucketYsqlCatalog  = []byte("ysql_catalog_version")

	allBuckets = [][]byte{
		bucketNamespaces, bucketTables, bucketTablets, bucketUDTypes,
		bucketTablegroups, bucketRoles, bucketSysConfig, bucketRedisConfig,
		bucketDDLLog, bucketCA, bucketPgTablespace, bucketPgClass,
		bucketPgNamespace, bucketYsqlCatalog,
	}
)

// Entity is anything the SysCatalog can persist: a stable bucket name and a
// row key unique within that bucket. entity.TablePB, entity.TabletPB et al.
// satisfy this.
type Entity interface {
	EntityKind() string
	EntityID() string
}

// Gateway is the durable, term-qualified SysCatalog. All writes are rejected
// with catalogerr.NotLeader unless the caller's term matches the term last
// set via SetTerm (done by the leader-election path, C4, the instant a
// master wins an election and before any loader runs).
type Gateway struct {
	db *bolt.DB

	termMu      sync.RWMutex
	currentTerm int64
}

// Open opens (creating if absent) the BoltDB-backed SysCatalog file under
// dataDir and ensures every bucket exists.
func Open(dataDir string) (*Gateway, error) {
	dbPath := filepath.Join(dataDir, "syscatalog.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open syscatalog db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Gateway{db: db}, nil
}

// Close closes the underlying database.
func (g *Gateway) Close() error { return g.db.Close() }

// SetTerm installs the term writes must be qualified against. Called by the
// leader-election path (C4) right after a master wins an election; nothing
// resets it when the master steps down.
func (g *Gateway) SetTerm(term int64) {
	g.termMu.Lock()
	defer g.termMu.Unlock()
	g.currentTerm = term
}

// CurrentTerm returns the term writes are currently qualified against.
func (g *Gateway) CurrentTerm() int64 {
	g.termMu.RLock()
	defer g.termMu.RUnlock()
	return g.currentTerm
}

func (g *Gateway) checkTerm(term int64) error {
	g.termMu.RLock()
	defer g.termMu.RUnlock()
	if term != g.currentTerm {
		return catalogerr.NotLeader()
	}
	return nil
}

func bucketFor(kind string) []byte {
	switch kind {
	case "namespaces":
		return bucketNamespaces
	case "tables":
		return bucketTables
	case "tablets":
		return bucketTablets
	case "udtypes":
		return bucketUDTypes
	case "tablegroups":
		return bucketTablegroups
	case "roles":
		return bucketRoles
	case "sys_config":
		return bucketSysConfig
	case "redis_config":
		return bucketRedisConfig
	default:
		return nil
	}
}

// Upsert durably writes one or more entities in a single BoltDB
// transaction, after checking that term still matches the current leader
// term. A successful return guarantees the write is on disk (BoltDB commits
// fsync by default) before the caller commits its in-memory dirty draft.
// The write is local to this master's bbolt file: the DDL paths call Upsert
// directly and do not submit it through raft, so it is not replicated to
// other peers.
func (g *Gateway) Upsert(term int64, entities ...Entity) error {
	if err := g.checkTerm(term); err != nil {
		return err
	}
	if len(entities) == 0 {
		return nil
	}

	return g.db.Update(func(tx *bolt.Tx) error {
		for _, e := range entities {
			b := bucketFor(e.EntityKind())
			if b == nil {
				return catalogerr.New(catalogerr.InvalidArgument, "unknown entity kind %q", e.EntityKind())
			}
			bkt := tx.Bucket(b)
			data, err := json.Marshal(e)
			if err != nil {
				return catalogerr.Wrap(catalogerr.IllegalState, err, "marshal %s/%s", e.EntityKind(), e.EntityID())
			}
			if err := bkt.Put([]byte(e.EntityID()), data); err != nil {
				return catalogerr.Wrap(catalogerr.IllegalState, err, "put %s/%s", e.EntityKind(), e.EntityID())
			}
		}
		return nil
	})
}

// Delete durably removes one or more entities, term-qualified like Upsert.
func (g *Gateway) Delete(term int64, entities ...Entity) error {
	if err := g.checkTerm(term); err != nil {
		return err
	}
	if len(entities) == 0 {
		return nil
	}

	return g.db.Update(func(tx *bolt.Tx) error {
		for _, e := range entities {
			b := bucketFor(e.EntityKind())
			if b == nil {
				return catalogerr.New(catalogerr.InvalidArgument, "unknown entity kind %q", e.EntityKind())
			}
			if err := tx.Bucket(b).Delete([]byte(e.EntityID())); err != nil {
				return catalogerr.Wrap(catalogerr.IllegalState, err, "delete %s/%s", e.EntityKind(), e.EntityID())
			}
		}
		return nil
	})
}

// Visit iterates every row of the named kind, calling load with its raw
// JSON payload. Used by C3's loaders at leader-election time to rebuild the
// in-memory catalog in the fixed order spec.md §4.3 requires: the caller
// picks that order by choosing which kind to Visit first.
func (g *Gateway) Visit(kind string, load func(id string, payload []byte) error) error {
	b := bucketFor(kind)
	if b == nil {
		return catalogerr.New(catalogerr.InvalidArgument, "unknown entity kind %q", kind)
	}
	return g.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			cp := make([]byte, len(v))
			copy(cp, v)
			if err := load(string(k), cp); err != nil {
				return err
			}
		}
		return nil
	})
}

// DDLLogEntry is one row of the append-only DDL audit log (§6 DdlLog RPC).
type DDLLogEntry struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	TableID   string    `json:"table_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
}

// AppendDdlLog appends one entry to the DDL audit log, term-qualified.
func (g *Gateway) AppendDdlLog(term int64, entry DDLLogEntry) error {
	if err := g.checkTerm(term); err != nil {
		return err
	}
	return g.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketDDLLog)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		entry.Seq = seq
		entry.Timestamp = time.Now()
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bkt.Put(seqKey(seq), data)
	})
}

// FetchDdlLog decodes every DDL log entry, in ascending sequence order, into
// out.
func (g *Gateway) FetchDdlLog(out *[]DDLLogEntry) error {
	return g.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDDLLog).Cursor()
		var entries []DDLLogEntry
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e DDLLogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
		*out = entries
		return nil
	})
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// PgTablespaceRow mirrors one row of PostgreSQL's pg_tablespace catalog,
// maintained so a tserver's PG-compatible query layer can resolve
// tablespace placement without a round trip to the master on every query
// (§4.2 ReadPgTablespaceInfo).
type PgTablespaceRow struct {
	OID           uint32 `json:"oid"`
	Name          string `json:"name"`
	PlacementJSON []byte `json:"placement_json"`
}

func (r PgTablespaceRow) EntityKind() string { return "pg_tablespace" }
func (r PgTablespaceRow) EntityID() string   { return fmt.Sprintf("%d", r.OID) }

// UpsertPgTablespace writes or replaces one pg_tablespace row, term-qualified.
func (g *Gateway) UpsertPgTablespace(term int64, row PgTablespaceRow) error {
	if err := g.checkTerm(term); err != nil {
		return err
	}
	return g.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPgTablespace).Put([]byte(row.EntityID()), data)
	})
}

// ReadPgTablespaceInfo returns every known pg_tablespace row.
func (g *Gateway) ReadPgTablespaceInfo() ([]PgTablespaceRow, error) {
	var rows []PgTablespaceRow
	err := g.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPgTablespace).ForEach(func(_, v []byte) error {
			var r PgTablespaceRow
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			rows = append(rows, r)
			return nil
		})
	})
	return rows, err
}

// UpsertPgClassRelnamespace records the relnamespace (owning-schema oid) of
// one pg_class row (§4.2 ReadPgClassRelnamespace), written whenever a PGSQL
// table is created or re-namespaced.
func (g *Gateway) UpsertPgClassRelnamespace(term int64, relOID, relnamespace uint32) error {
	if err := g.checkTerm(term); err != nil {
		return err
	}
	return g.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPgClass).Put(oidKey(relOID), oidValue(relnamespace))
	})
}

// ReadPgClassRelnamespace returns the full rel_oid -> relnamespace map.
func (g *Gateway) ReadPgClassRelnamespace() (map[uint32]uint32, error) {
	out := make(map[uint32]uint32)
	err := g.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPgClass).ForEach(func(k, v []byte) error {
			out[keyOID(k)] = valueOID(v)
			return nil
		})
	})
	return out, err
}

// UpsertPgNamespaceNspname records a PGSQL schema's name under its oid
// (§4.2 ReadPgNamespaceNspname).
func (g *Gateway) UpsertPgNamespaceNspname(term int64, oid uint32, nspname string) error {
	if err := g.checkTerm(term); err != nil {
		return err
	}
	return g.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPgNamespace).Put(oidKey(oid), []byte(nspname))
	})
}

// ReadPgNamespaceNspname returns the full oid -> nspname map.
func (g *Gateway) ReadPgNamespaceNspname() (map[uint32]string, error) {
	out := make(map[uint32]string)
	err := g.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPgNamespace).ForEach(func(k, v []byte) error {
			out[keyOID(k)] = string(v)
			return nil
		})
	})
	return out, err
}

var ysqlCatalogVersionKey = []byte("version")

// ReadYsqlCatalogVersion returns the current YSQL catalog version, the
// counter tserver query layers poll to know their cached schema is stale
// (§4.2 ReadYsqlCatalogVersion).
func (g *Gateway) ReadYsqlCatalogVersion() (uint64, error) {
	var v uint64
	err := g.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketYsqlCatalog).Get(ysqlCatalogVersionKey)
		if data == nil {
			return nil
		}
		v = valueOID64(data)
		return nil
	})
	return v, err
}

// BumpYsqlCatalogVersion increments and persists the YSQL catalog version,
// term-qualified. Every DDL operation that changes PGSQL-visible schema
// calls this (§4.5).
func (g *Gateway) BumpYsqlCatalogVersion(term int64) (uint64, error) {
	if err := g.checkTerm(term); err != nil {
		return 0, err
	}
	var next uint64
	err := g.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketYsqlCatalog)
		data := bkt.Get(ysqlCatalogVersionKey)
		cur := uint64(0)
		if data != nil {
			cur = valueOID64(data)
		}
		next = cur + 1
		return bkt.Put(ysqlCatalogVersionKey, oidValue64(next))
	})
	return next, err
}

// CopyPgsqlTables clones the rows of srcIDs into fresh rows under dstIDs
// (same index correspondence), used when a PGSQL database is cloned (e.g.
// TEMPLATE-based CREATE DATABASE, §4.5 CreateNamespace "colocated template"
// case). Both slices must be the same length.
func (g *Gateway) CopyPgsqlTables(term int64, srcIDs, dstIDs []string) error {
	if err := g.checkTerm(term); err != nil {
		return err
	}
	if len(srcIDs) != len(dstIDs) {
		return catalogerr.New(catalogerr.InvalidArgument, "CopyPgsqlTables: mismatched id slice lengths")
	}

	return g.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketTables)
		for i, src := range srcIDs {
			raw := bkt.Get([]byte(src))
			if raw == nil {
				return catalogerr.New(catalogerr.ObjectNotFound, "source table %s not found", src)
			}
			var m map[string]interface{}
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			m["id"] = dstIDs[i]
			out, err := json.Marshal(m)
			if err != nil {
				return err
			}
			if err := bkt.Put([]byte(dstIDs[i]), out); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteYsqlSystemTable removes a system catalog table row outright,
// bypassing term qualification: system table cleanup runs as part of
// namespace teardown after the namespace itself has already been
// term-checked by the caller (§4.5 DeleteNamespace cascades).
func (g *Gateway) DeleteYsqlSystemTable(id string) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTables).Delete([]byte(id))
	})
}

// ChangeMetadataRequest is the payload of a metadata change forwarded to a
// specific peer outside the normal raft-replicated Upsert path — used when
// a master needs to push a ChangeMetadataOp directly to a tserver-facing
// peer during remote bootstrap (§6 StartRemoteBootstrap).
type ChangeMetadataRequest struct {
	TableID    string          `json:"table_id"`
	TabletID   string          `json:"tablet_id,omitempty"`
	SchemaJSON json.RawMessage `json:"schema_json,omitempty"`
}

// SyncReplicateChangeMetadataOperation durably records that a
// ChangeMetadataRequest was synchronously replicated to peerID, so a
// concurrent loader or heartbeat pass sees a consistent view of in-flight
// schema propagation. Term-qualified like Upsert.
func (g *Gateway) SyncReplicateChangeMetadataOperation(term int64, req ChangeMetadataRequest, peerID string) error {
	if err := g.checkTerm(term); err != nil {
		return err
	}
	entry := DDLLogEntry{
		TableID: req.TableID,
		Action:  "SYNC_REPLICATE_CHANGE_METADATA",
		Detail:  fmt.Sprintf("peer=%s tablet=%s", peerID, req.TabletID),
	}
	return g.AppendDdlLog(term, entry)
}

// GetCA implements security.CAStore, letting the CertAuthority persist its
// root key/cert blob through the same gateway as the rest of the catalog.
func (g *Gateway) GetCA() ([]byte, error) {
	var data []byte
	err := g.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get([]byte("ca"))
		if v == nil {
			return fmt.Errorf("CA not found")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// SaveCA implements security.CAStore.
func (g *Gateway) SaveCA(data []byte) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("ca"), data)
	})
}

func oidKey(oid uint32) []byte   { return []byte(fmt.Sprintf("%010d", oid)) }
func keyOID(k []byte) uint32     { var v uint32; fmt.Sscanf(string(k), "%d", &v); return v }
func oidValue(v uint32) []byte   { return []byte(fmt.Sprintf("%010d", v)) }
func valueOID(v []byte) uint32   { var n uint32; fmt.Sscanf(string(v), "%d", &n); return n }
func oidValue64(v uint64) []byte { return []byte(fmt.Sprintf("%020d", v)) }
func valueOID64(v []byte) uint64 { var n uint64; fmt.Sscanf(string(v), "%d", &n); return n }

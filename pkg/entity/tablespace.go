package entity

// TablespacePlacement is one YSQL tablespace's resolved replication policy,
// as read from pg_tablespace/pg_class by the background tablespace refresh
// pass (§4.10).
type TablespacePlacement struct {
	TablespaceID    string          `json:"tablespace_id"`
	ReplicationInfo ReplicationInfo `json:"replication_info"`
}

// YsqlTablespaceManager is an immutable snapshot of every tablespace's
// placement policy, rebuilt wholesale and atomically swapped in by the
// background refresh pass rather than mutated in place (§4.10: "build a new
// immutable YsqlTablespaceManager atomically replacing the previous shared
// pointer").
type YsqlTablespaceManager struct {
	byID map[string]TablespacePlacement
}

// NewYsqlTablespaceManager builds an immutable lookup table from a flat
// placement list.
func NewYsqlTablespaceManager(placements []TablespacePlacement) *YsqlTablespaceManager {
	byID := make(map[string]TablespacePlacement, len(placements))
	for _, p := range placements {
		byID[p.TablespaceID] = p
	}
	return &YsqlTablespaceManager{byID: byID}
}

// Lookup resolves one tablespace id's replication policy.
func (m *YsqlTablespaceManager) Lookup(tablespaceID string) (ReplicationInfo, bool) {
	if m == nil || tablespaceID == "" {
		return ReplicationInfo{}, false
	}
	p, ok := m.byID[tablespaceID]
	return p.ReplicationInfo, ok
}

// Len reports how many tablespaces the snapshot carries.
func (m *YsqlTablespaceManager) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byID)
}

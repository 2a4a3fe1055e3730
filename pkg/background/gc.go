package background

import (
	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
)

// CleanUpDeletedTables implements §4.10's deleted-table sweep: every table
// currently DELETING/HIDING/DELETED is visited; DELETING flips to DELETED
// (HIDING to HIDDEN) once no task remains outstanding and every tablet has
// reported DELETED, and a table already sitting in DELETED is purged from
// both the identity maps and the durable SysCatalog. Returns the number of
// tables transitioned and the number purged.
func CleanUpDeletedTables(m *catalog.Manager) (transitioned, purged int, err error) {
	for _, id := range m.DeletedTableIDs() {
		tbl := m.Table(id)
		if tbl == nil {
			continue
		}
		if tbl.LockForRead().State == entity.TableDeleted {
			if perr := m.PurgeDeletedTable(id); perr != nil {
				return transitioned, purged, perr
			}
			purged++
			continue
		}

		ok, terr := m.MaybeTransitionTableToDeleted(id)
		if terr != nil {
			return transitioned, purged, terr
		}
		if ok {
			transitioned++
		}
	}
	return transitioned, purged, nil
}

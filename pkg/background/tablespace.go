package background

import (
	"context"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
)

// TablespaceSource reads pg_tablespace/pg_class under a leader-only query
// and returns the resolved per-tablespace placement policy. Satisfied by a
// real YSQL catalog reader once one exists; a nil source makes
// RefreshTablespaces a no-op, the same nil-is-a-no-op contract the rest of
// this codebase uses for not-yet-wired subsystems.
type TablespaceSource interface {
	LoadTablespaces(ctx context.Context) ([]entity.TablespacePlacement, error)
}

// RefreshTablespaces implements §4.10's tablespace refresh: build a fresh
// immutable YsqlTablespaceManager from source and atomically swap it in,
// leader-only (followers keep serving their last snapshot until they win
// an election and inherit loader-populated state).
func RefreshTablespaces(ctx context.Context, m *catalog.Manager, source TablespaceSource) error {
	if source == nil || !m.IsLeader() {
		return nil
	}
	placements, err := source.LoadTablespaces(ctx)
	if err != nil {
		return err
	}
	m.SetTablespaceManager(entity.NewYsqlTablespaceManager(placements))
	return nil
}

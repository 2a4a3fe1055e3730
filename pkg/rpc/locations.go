package rpc

import (
	"context"

	"github.com/cuemby/warren/pkg/entity"
)

// TabletLocation is the wire view of one tablet's placement, the unit both
// GetTableLocations and GetTabletLocations return.
type TabletLocation struct {
	TabletID  string                     `json:"tablet_id"`
	Partition entity.Partition           `json:"partition"`
	State     entity.TabletState         `json:"state"`
	Replicas  map[string]entity.Replica `json:"replicas"`
}

func tabletLocation(tl *entity.TabletInfo) TabletLocation {
	pb := tl.LockForRead()
	return TabletLocation{TabletID: pb.ID, Partition: pb.Partition, State: pb.State, Replicas: pb.ReplicaLocations}
}

type GetTableLocationsResponse struct {
	Status  Status           `json:"status"`
	Tablets []TabletLocation `json:"tablets"`
}

func (s *Server) GetTableLocations(ctx context.Context, req *IsDoneRequest) (*GetTableLocationsResponse, error) {
	tbl := s.manager.Table(req.ID)
	if tbl == nil {
		return &GetTableLocationsResponse{Status: statusFromError(notFound("table", req.ID))}, nil
	}
	tablets := tbl.GetTablets(false)
	out := make([]TabletLocation, 0, len(tablets))
	for _, tl := range tablets {
		out = append(out, tabletLocation(tl))
	}
	return &GetTableLocationsResponse{Status: OK, Tablets: out}, nil
}

type GetTabletLocationsResponse struct {
	Status Status         `json:"status"`
	Tablet TabletLocation `json:"tablet"`
}

func (s *Server) GetTabletLocations(ctx context.Context, req *IsDoneRequest) (*GetTabletLocationsResponse, error) {
	tl := s.manager.Tablet(req.ID)
	if tl == nil {
		return &GetTabletLocationsResponse{Status: statusFromError(notFound("tablet", req.ID))}, nil
	}
	return &GetTabletLocationsResponse{Status: OK, Tablet: tabletLocation(tl)}, nil
}

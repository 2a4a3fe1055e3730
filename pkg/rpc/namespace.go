package rpc

import (
	"context"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/entity"
)

// NamespaceSummary is the wire view of one namespace, flattened from
// entity.NamespacePB.
type NamespaceSummary struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	DatabaseType entity.DatabaseType `json:"database_type"`
	State        entity.NamespaceState `json:"state"`
	Colocated    bool                `json:"colocated"`
}

func namespaceSummary(ns *entity.NamespaceInfo) NamespaceSummary {
	pb := ns.LockForRead()
	return NamespaceSummary{ID: pb.ID, Name: pb.Name, DatabaseType: pb.DatabaseType, State: pb.State, Colocated: pb.Colocated}
}

type CreateNamespaceRequest struct {
	Name              string              `json:"name"`
	DatabaseType      entity.DatabaseType `json:"database_type"`
	Colocated         bool                `json:"colocated"`
	SourceNamespaceID string              `json:"source_namespace_id,omitempty"`
}

type CreateNamespaceResponse struct {
	Status Status `json:"status"`
	ID     string `json:"id,omitempty"`
}

func (s *Server) CreateNamespace(ctx context.Context, req *CreateNamespaceRequest) (*CreateNamespaceResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &CreateNamespaceResponse{Status: statusFromError(err)}, nil
	}
	ns, err := s.manager.CreateNamespace(catalog.CreateNamespaceRequest{
		Name: req.Name, DatabaseType: req.DatabaseType, Colocated: req.Colocated, SourceNamespaceID: req.SourceNamespaceID,
	})
	if err != nil {
		return &CreateNamespaceResponse{Status: statusFromError(err)}, nil
	}
	return &CreateNamespaceResponse{Status: OK, ID: ns.LockForRead().ID}, nil
}

type IsDoneRequest struct {
	ID string `json:"id"`
}

type IsDoneResponse struct {
	Status Status `json:"status"`
	Done   bool   `json:"done"`
}

// IsCreateNamespaceDone reports done=true unconditionally: CreateNamespace
// is synchronous in this Manager (no pending-creation state survives the
// call returning), matching §6's "is-done queries return done=true even on
// permanent failure" rule for an operation that can no longer fail async.
func (s *Server) IsCreateNamespaceDone(ctx context.Context, req *IsDoneRequest) (*IsDoneResponse, error) {
	return &IsDoneResponse{Status: OK, Done: true}, nil
}

type AlterNamespaceRequest struct {
	ID      string `json:"id"`
	NewName string `json:"new_name,omitempty"`
}

type StatusOnlyResponse struct {
	Status Status `json:"status"`
}

func (s *Server) AlterNamespace(ctx context.Context, req *AlterNamespaceRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.AlterNamespace(catalog.AlterNamespaceRequest{ID: req.ID, NewName: req.NewName})
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

func (s *Server) DeleteNamespace(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.DeleteNamespace(req.ID)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

// IsDeleteNamespaceDone reports done once the namespace no longer resolves,
// the way deletion is observed to have completed across the rest of this
// surface's is-done queries.
func (s *Server) IsDeleteNamespaceDone(ctx context.Context, req *IsDoneRequest) (*IsDoneResponse, error) {
	ns := s.manager.GetNamespaceInfo(req.ID)
	return &IsDoneResponse{Status: OK, Done: ns == nil}, nil
}

type ListNamespacesResponse struct {
	Status     Status             `json:"status"`
	Namespaces []NamespaceSummary `json:"namespaces"`
}

func (s *Server) ListNamespaces(ctx context.Context, req *struct{}) (*ListNamespacesResponse, error) {
	all := s.manager.ListNamespaces()
	out := make([]NamespaceSummary, 0, len(all))
	for _, ns := range all {
		out = append(out, namespaceSummary(ns))
	}
	return &ListNamespacesResponse{Status: OK, Namespaces: out}, nil
}

type GetNamespaceInfoResponse struct {
	Status    Status           `json:"status"`
	Namespace NamespaceSummary `json:"namespace"`
}

func (s *Server) GetNamespaceInfo(ctx context.Context, req *IsDoneRequest) (*GetNamespaceInfoResponse, error) {
	ns := s.manager.GetNamespaceInfo(req.ID)
	if ns == nil {
		return &GetNamespaceInfoResponse{Status: statusFromError(catalogerr.New(catalogerr.ObjectNotFound, "namespace %s not found", req.ID))}, nil
	}
	return &GetNamespaceInfoResponse{Status: OK, Namespace: namespaceSummary(ns)}, nil
}

package rpc

import (
	"context"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/entity"
)

type CreateTablegroupRequest struct {
	NamespaceID string `json:"namespace_id"`
}

type CreateTablegroupResponse struct {
	Status Status `json:"status"`
	ID     string `json:"id,omitempty"`
}

func (s *Server) CreateTablegroup(ctx context.Context, req *CreateTablegroupRequest) (*CreateTablegroupResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &CreateTablegroupResponse{Status: statusFromError(err)}, nil
	}
	id, err := s.manager.CreateTablegroup(catalog.CreateTablegroupRequest{NamespaceID: req.NamespaceID})
	if err != nil {
		return &CreateTablegroupResponse{Status: statusFromError(err)}, nil
	}
	return &CreateTablegroupResponse{Status: OK, ID: id}, nil
}

func (s *Server) DeleteTablegroup(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.DeleteTablegroup(req.ID)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

type ListTablegroupsRequest struct {
	NamespaceID string `json:"namespace_id,omitempty"`
}

type ListTablegroupsResponse struct {
	Status      Status                  `json:"status"`
	Tablegroups []*entity.TablegroupPB `json:"tablegroups"`
}

func (s *Server) ListTablegroups(ctx context.Context, req *ListTablegroupsRequest) (*ListTablegroupsResponse, error) {
	return &ListTablegroupsResponse{Status: OK, Tablegroups: s.manager.ListTablegroups(req.NamespaceID)}, nil
}

type CreateUDTypeRequest struct {
	Name        string   `json:"name"`
	NamespaceID string   `json:"namespace_id"`
	FieldNames  []string `json:"field_names"`
	FieldTypes  []string `json:"field_types"`
}

type CreateUDTypeResponse struct {
	Status Status `json:"status"`
	ID     string `json:"id,omitempty"`
}

func (s *Server) CreateUDType(ctx context.Context, req *CreateUDTypeRequest) (*CreateUDTypeResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &CreateUDTypeResponse{Status: statusFromError(err)}, nil
	}
	ut, err := s.manager.CreateUDType(catalog.CreateUDTypeRequest{
		Name: req.Name, NamespaceID: req.NamespaceID, FieldNames: req.FieldNames, FieldTypes: req.FieldTypes,
	})
	if err != nil {
		return &CreateUDTypeResponse{Status: statusFromError(err)}, nil
	}
	return &CreateUDTypeResponse{Status: OK, ID: ut.LockForRead().ID}, nil
}

func (s *Server) DeleteUDType(ctx context.Context, req *IsDoneRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.DeleteUDType(req.ID)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

type GetUDTypeInfoResponse struct {
	Status Status             `json:"status"`
	Type   *entity.UDTypePB `json:"type,omitempty"`
}

func (s *Server) GetUDTypeInfo(ctx context.Context, req *IsDoneRequest) (*GetUDTypeInfoResponse, error) {
	ut := s.manager.GetUDTypeInfo(req.ID)
	if ut == nil {
		return &GetUDTypeInfoResponse{Status: statusFromError(notFound("user-defined type", req.ID))}, nil
	}
	return &GetUDTypeInfoResponse{Status: OK, Type: ut.LockForRead()}, nil
}

type ListUDTypesRequest struct {
	NamespaceID string `json:"namespace_id,omitempty"`
}

type ListUDTypesResponse struct {
	Status Status             `json:"status"`
	Types  []*entity.UDTypePB `json:"types"`
}

func (s *Server) ListUDTypes(ctx context.Context, req *ListUDTypesRequest) (*ListUDTypesResponse, error) {
	all := s.manager.ListUDTypes()
	out := make([]*entity.UDTypePB, 0, len(all))
	for _, ut := range all {
		pb := ut.LockForRead()
		if req.NamespaceID == "" || pb.NamespaceID == req.NamespaceID {
			out = append(out, pb)
		}
	}
	return &ListUDTypesResponse{Status: OK, Types: out}, nil
}

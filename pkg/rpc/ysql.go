package rpc

import "context"

type ReservePgsqlOidsRequest struct {
	NamespaceID string `json:"namespace_id"`
	Count       uint32 `json:"count"`
}

type ReservePgsqlOidsResponse struct {
	Status Status `json:"status"`
	First  uint32 `json:"first"`
	Last   uint32 `json:"last"`
}

func (s *Server) ReservePgsqlOids(ctx context.Context, req *ReservePgsqlOidsRequest) (*ReservePgsqlOidsResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &ReservePgsqlOidsResponse{Status: statusFromError(err)}, nil
	}
	first, last, err := s.manager.ReservePgsqlOids(req.NamespaceID, req.Count)
	if err != nil {
		return &ReservePgsqlOidsResponse{Status: statusFromError(err)}, nil
	}
	return &ReservePgsqlOidsResponse{Status: OK, First: first, Last: last}, nil
}

type GetYsqlCatalogConfigResponse struct {
	Status     Status `json:"status"`
	Version    uint32 `json:"version"`
	InitdbDone bool   `json:"initdb_done"`
}

func (s *Server) GetYsqlCatalogConfig(ctx context.Context, req *struct{}) (*GetYsqlCatalogConfigResponse, error) {
	pb := s.manager.GetYsqlCatalogConfig().LockForRead()
	return &GetYsqlCatalogConfigResponse{Status: OK, Version: pb.Version, InitdbDone: pb.InitdbDone}, nil
}

type IsInitDbDoneResponse struct {
	Status Status `json:"status"`
	Done   bool   `json:"done"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) IsInitDbDone(ctx context.Context, req *struct{}) (*IsInitDbDoneResponse, error) {
	done, errMsg := s.manager.IsInitDbDone()
	return &IsInitDbDoneResponse{Status: OK, Done: done, Error: errMsg}, nil
}

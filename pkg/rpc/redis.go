package rpc

import "context"

type RedisConfigGetRequest struct {
	NamespaceID string `json:"namespace_id"`
	Key         string `json:"key"`
}

type RedisConfigGetResponse struct {
	Status Status `json:"status"`
	Value  []byte `json:"value,omitempty"`
	Found  bool   `json:"found"`
}

func (s *Server) RedisConfigGet(ctx context.Context, req *RedisConfigGetRequest) (*RedisConfigGetResponse, error) {
	value, ok := s.manager.RedisConfigGet(req.NamespaceID, req.Key)
	return &RedisConfigGetResponse{Status: OK, Value: value, Found: ok}, nil
}

type RedisConfigSetRequest struct {
	NamespaceID string `json:"namespace_id"`
	Key         string `json:"key"`
	Value       []byte `json:"value"`
}

func (s *Server) RedisConfigSet(ctx context.Context, req *RedisConfigSetRequest) (*StatusOnlyResponse, error) {
	if err := s.ensureLeader(); err != nil {
		return &StatusOnlyResponse{Status: statusFromError(err)}, nil
	}
	err := s.manager.RedisConfigSet(req.NamespaceID, req.Key, req.Value)
	return &StatusOnlyResponse{Status: statusFromError(err)}, nil
}

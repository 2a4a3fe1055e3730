package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// adminServiceName is the fully-qualified service name carried on every
// method's FullMethod string, matching the shape protoc-gen-go-grpc would
// produce for a service named MasterAdmin in a warren.master package.
const adminServiceName = "warren.master.MasterAdmin"

// call is the narrow signature every admin RPC handler method matches once
// its request/response types are erased to interface{} — the same shape
// generated _Service_Method_Handler functions close over, hand-written
// here since no .proto exists for this surface.
type call func(s *Server, ctx context.Context, req interface{}) (interface{}, error)

// method builds one grpc.MethodDesc: decode into a freshly allocated
// request value, then either invoke c directly or route through the
// server's configured unary interceptor, exactly as generated gRPC code
// does for a unary RPC.
func method(name string, newReq func() interface{}, c call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return c(srv.(*Server), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + adminServiceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return c(srv.(*Server), ctx, req)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// empty is the decode target for every RPC with no request fields.
func empty() interface{} { return &struct{}{} }

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*interface{})(nil),
	Metadata:    "pkg/rpc/desc.go",
	Methods: []grpc.MethodDesc{
		method("CreateNamespace", func() interface{} { return new(CreateNamespaceRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.CreateNamespace(ctx, req.(*CreateNamespaceRequest)) }),
		method("IsCreateNamespaceDone", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsCreateNamespaceDone(ctx, req.(*IsDoneRequest)) }),
		method("AlterNamespace", func() interface{} { return new(AlterNamespaceRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.AlterNamespace(ctx, req.(*AlterNamespaceRequest)) }),
		method("DeleteNamespace", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.DeleteNamespace(ctx, req.(*IsDoneRequest)) }),
		method("IsDeleteNamespaceDone", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsDeleteNamespaceDone(ctx, req.(*IsDoneRequest)) }),
		method("ListNamespaces", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.ListNamespaces(ctx, req.(*struct{})) }),
		method("GetNamespaceInfo", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetNamespaceInfo(ctx, req.(*IsDoneRequest)) }),

		method("CreateTable", func() interface{} { return new(CreateTableRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.CreateTable(ctx, req.(*CreateTableRequest)) }),
		method("IsCreateTableDone", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsCreateTableDone(ctx, req.(*IsDoneRequest)) }),
		method("AlterTable", func() interface{} { return new(AlterTableRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.AlterTable(ctx, req.(*AlterTableRequest)) }),
		method("IsAlterTableDone", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsAlterTableDone(ctx, req.(*IsDoneRequest)) }),
		method("TruncateTable", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.TruncateTable(ctx, req.(*IsDoneRequest)) }),
		method("IsTruncateTableDone", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsTruncateTableDone(ctx, req.(*IsDoneRequest)) }),
		method("DeleteTable", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.DeleteTable(ctx, req.(*IsDoneRequest)) }),
		method("IsDeleteTableDone", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsDeleteTableDone(ctx, req.(*IsDoneRequest)) }),
		method("GetTableSchema", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetTableSchema(ctx, req.(*IsDoneRequest)) }),
		method("GetColocatedTabletSchema", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetColocatedTabletSchema(ctx, req.(*IsDoneRequest)) }),
		method("ListTables", func() interface{} { return new(ListTablesRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.ListTables(ctx, req.(*ListTablesRequest)) }),

		method("CreateTablegroup", func() interface{} { return new(CreateTablegroupRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.CreateTablegroup(ctx, req.(*CreateTablegroupRequest)) }),
		method("DeleteTablegroup", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.DeleteTablegroup(ctx, req.(*IsDoneRequest)) }),
		method("ListTablegroups", func() interface{} { return new(ListTablegroupsRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.ListTablegroups(ctx, req.(*ListTablegroupsRequest)) }),

		method("CreateUDType", func() interface{} { return new(CreateUDTypeRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.CreateUDType(ctx, req.(*CreateUDTypeRequest)) }),
		method("DeleteUDType", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.DeleteUDType(ctx, req.(*IsDoneRequest)) }),
		method("GetUDTypeInfo", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetUDTypeInfo(ctx, req.(*IsDoneRequest)) }),
		method("ListUDTypes", func() interface{} { return new(ListUDTypesRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.ListUDTypes(ctx, req.(*ListUDTypesRequest)) }),

		method("SplitTablet", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.SplitTablet(ctx, req.(*IsDoneRequest)) }),
		method("DeleteNotServingTablet", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.DeleteNotServingTablet(ctx, req.(*IsDoneRequest)) }),
		method("BackfillIndex", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.BackfillIndex(ctx, req.(*IsDoneRequest)) }),
		method("GetBackfillJobs", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetBackfillJobs(ctx, req.(*IsDoneRequest)) }),
		method("LaunchBackfillIndexForTable", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.LaunchBackfillIndexForTable(ctx, req.(*IsDoneRequest)) }),

		method("ReservePgsqlOids", func() interface{} { return new(ReservePgsqlOidsRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.ReservePgsqlOids(ctx, req.(*ReservePgsqlOidsRequest)) }),
		method("GetYsqlCatalogConfig", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetYsqlCatalogConfig(ctx, req.(*struct{})) }),
		method("IsInitDbDone", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsInitDbDone(ctx, req.(*struct{})) }),

		method("GetTableLocations", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetTableLocations(ctx, req.(*IsDoneRequest)) }),
		method("GetTabletLocations", func() interface{} { return new(IsDoneRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetTabletLocations(ctx, req.(*IsDoneRequest)) }),

		method("RedisConfigGet", func() interface{} { return new(RedisConfigGetRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.RedisConfigGet(ctx, req.(*RedisConfigGetRequest)) }),
		method("RedisConfigSet", func() interface{} { return new(RedisConfigSetRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.RedisConfigSet(ctx, req.(*RedisConfigSetRequest)) }),

		method("GetClusterConfig", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetClusterConfig(ctx, req.(*struct{})) }),
		method("ChangeMasterClusterConfig", func() interface{} { return new(ChangeMasterClusterConfigRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.ChangeMasterClusterConfig(ctx, req.(*ChangeMasterClusterConfigRequest)) }),
		method("SetPreferredZones", func() interface{} { return new(SetPreferredZonesRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.SetPreferredZones(ctx, req.(*SetPreferredZonesRequest)) }),
		method("IsLoadBalanced", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsLoadBalanced(ctx, req.(*struct{})) }),
		method("IsLoadBalancerIdle", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.IsLoadBalancerIdle(ctx, req.(*struct{})) }),
		method("AreLeadersOnPreferredOnly", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.AreLeadersOnPreferredOnly(ctx, req.(*struct{})) }),
		method("GetLoadMovePercent", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetLoadMovePercent(ctx, req.(*struct{})) }),
		method("GetLeaderBlacklistPercent", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.GetLeaderBlacklistPercent(ctx, req.(*struct{})) }),

		method("DumpMasterState", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.DumpMasterState(ctx, req.(*struct{})) }),
		method("StartRemoteBootstrap", func() interface{} { return new(StartRemoteBootstrapRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.StartRemoteBootstrap(ctx, req.(*StartRemoteBootstrapRequest)) }),
		method("DdlLog", func() interface{} { return new(DdlLogRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.DdlLog(ctx, req.(*DdlLogRequest)) }),

		method("RegisterTServer", func() interface{} { return new(RegisterTServerRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.RegisterTServer(ctx, req.(*RegisterTServerRequest)) }),
		method("ListTServers", func() interface{} { return empty() },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.ListTServers(ctx, req.(*struct{})) }),
		method("TSHeartbeat", func() interface{} { return new(TSHeartbeatRequest) },
			func(s *Server, ctx context.Context, req interface{}) (interface{}, error) { return s.TSHeartbeat(ctx, req.(*TSHeartbeatRequest)) }),
	},
	Streams: []grpc.StreamDesc{},
}

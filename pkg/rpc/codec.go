// Package rpc implements the §6 administrative RPC surface: a real
// google.golang.org/grpc server, authenticated with the same mTLS
// machinery the teacher's pkg/api server uses, but with hand-built
// request/response dispatch in place of generated protobuf stubs (none
// exist in the pack for this surface). pkg/tserverset/proxy.go already
// established this shape on the client side for the tserver-facing
// surface; this package mirrors it for the admin-facing surface, under
// its own codec name so the two never collide on a shared connection.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// adminJSONCodec is the admin-surface counterpart of
// pkg/tserverset's ts-json codec: same shape, distinct registered name,
// since the two are different services dialed from different directions.
type adminJSONCodec struct{}

func (adminJSONCodec) Marshal(v interface{}) ([]byte, error)        { return json.Marshal(v) }
func (adminJSONCodec) Unmarshal(data []byte, v interface{}) error   { return json.Unmarshal(data, v) }
func (adminJSONCodec) Name() string                                 { return "admin-json" }

func init() {
	encoding.RegisterCodec(adminJSONCodec{})
}

// adminContentSubtype is passed via grpc.CallContentSubtype by callers
// that dial this service directly with a plain *grpc.ClientConn (e.g.
// integration tests); cmd/master's own CLI talks to it the same way
// pkg/tserverset.GRPCProxy talks to tservers.
const adminContentSubtype = "admin-json"

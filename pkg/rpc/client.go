package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Client is the admin-surface counterpart of pkg/tserverset.GRPCProxy: a
// plain *grpc.ClientConn dialed with the admin-json codec, used by
// cmd/master's own CLI subcommands rather than by another master or a
// tserver. One Client per target address; Close releases the connection.
type Client struct {
	conn *grpc.ClientConn
}

// DialOption configures how NewClient authenticates to the admin surface.
type DialOption func(*tls.Config)

// WithClientCert presents cert on the handshake, trusting caCert as root -
// the same client-certificate flow the teacher's pkg/client uses to reach
// its API server.
func WithClientCert(cert tls.Certificate, caCert *x509.Certificate) DialOption {
	return func(c *tls.Config) {
		pool := x509.NewCertPool()
		pool.AddCert(caCert)
		c.Certificates = []tls.Certificate{cert}
		c.RootCAs = pool
	}
}

// NewClient dials addr's admin RPC surface.
func NewClient(addr string, opts ...DialOption) (*Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS13}
	for _, opt := range opts {
		opt(tlsConfig)
	}
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) call(ctx context.Context, method string, req, resp interface{}) error {
	return c.conn.Invoke(ctx, "/"+adminServiceName+"/"+method, req, resp, grpc.CallContentSubtype(adminContentSubtype))
}

// CreateNamespace issues the CreateNamespace RPC.
func (c *Client) CreateNamespace(ctx context.Context, req *CreateNamespaceRequest) (*CreateNamespaceResponse, error) {
	resp := new(CreateNamespaceResponse)
	if err := c.call(ctx, "CreateNamespace", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListNamespaces issues the ListNamespaces RPC.
func (c *Client) ListNamespaces(ctx context.Context) (*ListNamespacesResponse, error) {
	resp := new(ListNamespacesResponse)
	if err := c.call(ctx, "ListNamespaces", &struct{}{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DumpMasterState issues the DumpMasterState RPC, the same diagnostic the
// teacher's CLI calls "cluster info".
func (c *Client) DumpMasterState(ctx context.Context) (*DumpMasterStateResponse, error) {
	resp := new(DumpMasterStateResponse)
	if err := c.call(ctx, "DumpMasterState", &struct{}{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

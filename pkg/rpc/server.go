package rpc

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/catalogerr"
	"github.com/cuemby/warren/pkg/heartbeat"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/split"
	"github.com/cuemby/warren/pkg/tserverset"
)

// Status is the §6 "standard error{status, code} envelope" carried on
// every response, success or failure.
type Status struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK is the zero-value success status every handler returns on the happy
// path.
var OK = Status{Code: "OK"}

func statusFromError(err error) Status {
	if err == nil {
		return OK
	}
	if ce, ok := err.(*catalogerr.Error); ok {
		return Status{Code: string(ce.Code), Message: ce.Error()}
	}
	return Status{Code: string(catalogerr.IllegalState), Message: err.Error()}
}

// Server implements the §6 administrative RPC surface over real gRPC
// framing/mTLS, mirroring the teacher's pkg/api.Server: it wraps the
// catalog Manager plus the *grpc.Server, loads its certificate/CA pair the
// same way (security.GetCertDir / LoadCertFromFile / LoadCACertFromFile),
// and exposes Start/Stop around a per-RPC ensureLeader() guard.
type Server struct {
	manager  *catalog.Manager
	registry *tserverset.Registry
	reports  *heartbeat.Processor
	splitter *split.Splitter
	proxy    tserverset.TSProxy

	grpcServer *grpc.Server
	logger     zerolog.Logger
}

// SetSplitter wires the manual-trigger SplitTablet RPC to a live
// split.Splitter, following the same nil-is-a-no-op optional-collaborator
// contract as catalog.Manager.SetTaskScheduler. Unset, SplitTablet reports
// NotSupported instead of silently doing nothing.
func (s *Server) SetSplitter(sp *split.Splitter) { s.splitter = sp }

// SetProxy wires StartRemoteBootstrap to a live tserver proxy.
func (s *Server) SetProxy(p tserverset.TSProxy) { s.proxy = p }

// NewServer builds an mTLS-secured admin RPC server for mgr. registry and
// reports back RegisterTServer/ListTServers/TSHeartbeat; either may be nil
// in tests that only exercise the catalog-DDL handlers. With a nil registry
// RegisterTServer returns NotSupported and ListTServers returns an empty
// list; with nil reports TSHeartbeat returns NotSupported.
func NewServer(mgr *catalog.Manager, registry *tserverset.Registry, reports *heartbeat.Processor) (*Server, error) {
	certDir, err := security.GetCertDir("manager", mgr.NodeID())
	if err != nil {
		return nil, fmt.Errorf("rpc: get cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("rpc: manager certificate not found at %s - ensure cluster is initialized", certDir)
	}
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rpc: load manager certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rpc: load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequestClientCert,
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}

	grpcServer := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	s := &Server{
		manager:  mgr,
		registry: registry,
		reports:  reports,
		logger:   log.WithComponent("rpc"),
	}
	grpcServer.RegisterService(&adminServiceDesc, s)
	s.grpcServer = grpcServer
	return s, nil
}

// ensureLeader rejects writes issued against a non-leader node, the same
// guard the teacher's pkg/api.Server.ensureLeader applies before every
// mutating RPC.
func (s *Server) ensureLeader() error {
	if !s.manager.IsLeader() {
		return catalogerr.NotLeader()
	}
	return nil
}

// Start begins serving on addr; blocks until Stop is called or the
// listener errors.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	s.logger.Info().Str("addr", addr).Msg("admin rpc listening")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully drains in-flight RPCs before returning.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}


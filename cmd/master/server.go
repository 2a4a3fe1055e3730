package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/warren/pkg/assignment"
	"github.com/cuemby/warren/pkg/background"
	"github.com/cuemby/warren/pkg/catalog"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/heartbeat"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/rpc"
	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/split"
	"github.com/cuemby/warren/pkg/tasks"
	"github.com/cuemby/warren/pkg/tserverset"
)

// runningServer is every long-lived component running() wires up, kept
// together so shutdown can stop them in reverse order.
type runningServer struct {
	mgr        *catalog.Manager
	assigner   *assignment.Assigner
	sweeper    *background.Sweeper
	rpc        *rpc.Server
	metricsSrv *http.Server
}

// running constructs and starts every piece of one master node: the Raft
// catalog Manager, its certificate authority, the tserver registry and
// proxy, the task runner shared across the DDL engine/assigner/splitter,
// the background sweeper, and the admin RPC server. lifecycle selects
// Bootstrap (first node) or Join (joining an existing cluster).
func running(cfg config.Config, lifecycle func(*catalog.Manager) error) (*runningServer, error) {
	mgr, err := catalog.New(catalog.Config{
		NodeID:   cfg.NodeID,
		BindAddr: cfg.RaftBind,
		DataDir:  cfg.DataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("create manager: %w", err)
	}

	metrics.SetVersion(masterVersion)
	metrics.RegisterComponent("raft", false, "starting")
	metrics.RegisterComponent("syscatalog", false, "starting")
	metrics.RegisterComponent("rpc", false, "starting")

	if err := lifecycle(mgr); err != nil {
		_ = mgr.Shutdown()
		return nil, err
	}
	log.Logger.Info().Str("node_id", cfg.NodeID).Msg("catalog manager started")
	metrics.RegisterComponent("raft", true, "leader sequence complete")
	metrics.RegisterComponent("syscatalog", true, "loaders run")

	ca := security.NewCertAuthority(mgr.Gateway())
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			_ = mgr.Shutdown()
			return nil, fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			_ = mgr.Shutdown()
			return nil, fmt.Errorf("save CA: %w", err)
		}
		log.Logger.Info().Msg("root CA initialized")
	}

	certDir, err := security.GetCertDir("manager", cfg.NodeID)
	if err != nil {
		_ = mgr.Shutdown()
		return nil, fmt.Errorf("get cert directory: %w", err)
	}
	host, _, _ := net.SplitHostPort(cfg.RPCBind)
	dnsNames := []string{"localhost", cfg.NodeID}
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = append(ips, ip)
	} else {
		ips = append(ips, net.ParseIP("127.0.0.1"))
	}
	if !security.CertExists(certDir) {
		tlsCert, err := ca.IssueNodeCertificate(cfg.NodeID, "manager", dnsNames, ips)
		if err != nil {
			_ = mgr.Shutdown()
			return nil, fmt.Errorf("issue node certificate: %w", err)
		}
		if err := security.SaveCertToFile(tlsCert, certDir); err != nil {
			_ = mgr.Shutdown()
			return nil, fmt.Errorf("save node certificate: %w", err)
		}
		if err := security.SaveCACertToFile(ca.GetRootCACert(), certDir); err != nil {
			_ = mgr.Shutdown()
			return nil, fmt.Errorf("save CA certificate: %w", err)
		}
		log.Logger.Info().Str("dir", certDir).Msg("node certificate issued")
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		_ = mgr.Shutdown()
		return nil, fmt.Errorf("load node certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		_ = mgr.Shutdown()
		return nil, fmt.Errorf("load CA certificate: %w", err)
	}

	registry := tserverset.NewRegistry(heartbeatLiveness(cfg))
	proxy := tserverset.NewGRPCProxy(registry, *cert, caCert)
	runner := tasks.NewRunner(proxy, taskPoolSize)

	mgr.SetTaskScheduler(runner)
	assigner := assignment.NewAssigner(mgr, registry, runner)
	splitter := split.NewSplitter(mgr, runner, runner, split.DefaultOptions())
	reports := heartbeat.NewProcessor(mgr, proxy)
	sweeper := background.NewSweeper(mgr, nil, background.DefaultConfig())

	rpcServer, err := rpc.NewServer(mgr, registry, reports)
	if err != nil {
		_ = mgr.Shutdown()
		return nil, fmt.Errorf("create rpc server: %w", err)
	}
	rpcServer.SetSplitter(splitter)
	rpcServer.SetProxy(proxy)

	assigner.Start()
	sweeper.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := rpcServer.Start(cfg.RPCBind); err != nil {
			errCh <- err
		}
	}()
	log.Logger.Info().Str("addr", cfg.RPCBind).Msg("admin rpc listening")
	metrics.RegisterComponent("rpc", true, "listening on "+cfg.RPCBind)

	metricsSrv := startMetricsServer(cfg.MetricsBind)

	return &runningServer{mgr: mgr, assigner: assigner, sweeper: sweeper, rpc: rpcServer, metricsSrv: metricsSrv}, waitOrServe(errCh)
}

const masterVersion = "1.0.0"

// startMetricsServer serves Prometheus metrics and the component health
// endpoints on their own listener, separate from the mTLS admin RPC surface
// so a plain HTTP scraper can reach them without a client certificate.
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Logger.Info().Str("addr", addr).Msg("metrics/health endpoints listening")
	return srv
}

// waitOrServe returns immediately unless the rpc server has already failed
// to bind; blockUntilSignal blocks separately on the signal channel afterwards.
func waitOrServe(errCh chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		return nil
	}
}

// blockUntilSignal waits for SIGINT/SIGTERM, then stops every component of
// rs in the reverse order it was started.
func (rs *runningServer) blockUntilSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Logger.Info().Msg("shutting down")

	_ = rs.metricsSrv.Close()
	rs.rpc.Stop()
	rs.sweeper.Stop()
	rs.assigner.Stop()
	if err := rs.mgr.Shutdown(); err != nil {
		log.Logger.Error().Err(err).Msg("manager shutdown failed")
	}
}

const taskPoolSize = 8

func heartbeatLiveness(cfg config.Config) time.Duration {
	if cfg.HeartbeatDeadlineFraction <= 0 {
		return 30 * time.Second
	}
	return time.Duration(float64(30*time.Second) / cfg.HeartbeatDeadlineFraction)
}

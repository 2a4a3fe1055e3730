// Package config loads the master process's runtime configuration from
// defaults, an optional YAML file, and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReplicationDefaults is the cluster-wide default replication policy applied
// to namespaces/tables that don't specify their own (spec.md §3
// ReplicationInfo).
type ReplicationDefaults struct {
	NumReplicas     int      `yaml:"num_replicas"`
	PlacementBlocks []string `yaml:"placement_blocks,omitempty"`
}

// Config is the master process's full runtime configuration.
type Config struct {
	NodeID      string `yaml:"node_id"`
	RPCBind     string `yaml:"rpc_bind"`
	RaftBind    string `yaml:"raft_bind"`
	MetricsBind string `yaml:"metrics_bind"`
	DataDir     string `yaml:"data_dir"`

	RaftPeers []string `yaml:"raft_peers,omitempty"`

	TLSCertFile string `yaml:"tls_cert_file,omitempty"`
	TLSKeyFile  string `yaml:"tls_key_file,omitempty"`
	TLSCAFile   string `yaml:"tls_ca_file,omitempty"`

	HeartbeatDeadlineFraction float64       `yaml:"heartbeat_deadline_fraction"`
	AssignmentInterval        time.Duration `yaml:"assignment_interval"`
	GCSweepInterval           time.Duration `yaml:"gc_sweep_interval"`
	TablespaceRefreshInterval time.Duration `yaml:"tablespace_refresh_interval"`
	PartitionsRebuildInterval time.Duration `yaml:"partitions_rebuild_interval"`

	Replication ReplicationDefaults `yaml:"replication"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the configuration's baseline values, before any file or
// environment overrides are applied.
func Default() Config {
	return Config{
		RPCBind:                   "0.0.0.0:7100",
		RaftBind:                  "0.0.0.0:7101",
		MetricsBind:               "127.0.0.1:9090",
		DataDir:                   "./data",
		HeartbeatDeadlineFraction: 0.5,
		AssignmentInterval:        2 * time.Second,
		GCSweepInterval:           60 * time.Second,
		TablespaceRefreshInterval: 30 * time.Second,
		PartitionsRebuildInterval: 30 * time.Second,
		Replication: ReplicationDefaults{
			NumReplicas: 3,
		},
		LogLevel: "info",
	}
}

// Load builds a Config from defaults, an optional YAML file at path (skipped
// if path is empty), then environment variable overrides prefixed
// CATALOG_MASTER_.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.NodeID == "" {
		return cfg, fmt.Errorf("node_id is required")
	}

	return cfg, nil
}

const envPrefix = "CATALOG_MASTER_"

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv(envPrefix + "NODE_ID"); ok {
		cfg.NodeID = v
	}
	if v, ok := os.LookupEnv(envPrefix + "RPC_BIND"); ok {
		cfg.RPCBind = v
	}
	if v, ok := os.LookupEnv(envPrefix + "DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "RAFT_BIND"); ok {
		cfg.RaftBind = v
	}
	if v, ok := os.LookupEnv(envPrefix + "METRICS_BIND"); ok {
		cfg.MetricsBind = v
	}
	if v, ok := os.LookupEnv(envPrefix + "RAFT_PEERS"); ok {
		cfg.RaftPeers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_JSON"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
}

// ClusterBootstrap is the declarative cluster-bootstrap document loaded by
// `cmd/master apply` — an initial set of namespaces and the replication
// policy to create them with, the same way the teacher's `cmd/warren apply`
// loads a YAML resource document.
type ClusterBootstrap struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Namespaces []BootstrapNamespace   `yaml:"namespaces"`
	Metadata   map[string]interface{} `yaml:"metadata,omitempty"`
}

// BootstrapNamespace is one namespace entry of a ClusterBootstrap document.
type BootstrapNamespace struct {
	Name            string `yaml:"name"`
	DatabaseType    string `yaml:"database_type"`
	NumReplicas     int    `yaml:"num_replicas,omitempty"`
	Colocated       bool   `yaml:"colocated,omitempty"`
}

// LoadClusterBootstrap parses a cluster-bootstrap YAML file.
func LoadClusterBootstrap(path string) (*ClusterBootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap file: %w", err)
	}

	var doc ClusterBootstrap
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse bootstrap file: %w", err)
	}
	if doc.Kind != "ClusterBootstrap" {
		return nil, fmt.Errorf("unsupported bootstrap kind: %s", doc.Kind)
	}

	return &doc, nil
}

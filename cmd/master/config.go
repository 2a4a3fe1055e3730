package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/warren/pkg/config"
)

// addConfigFlags registers the flags every node-lifecycle subcommand
// (bootstrap, join) accepts, mirroring the shape of config.Config so a
// deployment can run entirely off flags, entirely off a config file, or a
// file with flag overrides.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to a YAML config file")
	cmd.Flags().String("node-id", "", "Unique node ID (required)")
	cmd.Flags().String("rpc-bind", "", "Address for the admin RPC surface")
	cmd.Flags().String("raft-bind", "", "Address for Raft transport")
	cmd.Flags().String("metrics-bind", "", "Address for the metrics/health HTTP server")
	cmd.Flags().String("data-dir", "", "Data directory for catalog state")
}

// loadConfig builds a Config from defaults, an optional --config file, and
// flag overrides, in that precedence order - flags win. Unlike
// config.Load, node_id validation happens after flag overrides are
// applied, since "bootstrap --node-id n1" with no file is the common case.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.NodeID = v
	}
	if v, _ := cmd.Flags().GetString("rpc-bind"); v != "" {
		cfg.RPCBind = v
	}
	if v, _ := cmd.Flags().GetString("raft-bind"); v != "" {
		cfg.RaftBind = v
	}
	if v, _ := cmd.Flags().GetString("metrics-bind"); v != "" {
		cfg.MetricsBind = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}

	if cfg.NodeID == "" {
		return cfg, fmt.Errorf("node_id is required (set --node-id or the config file's node_id)")
	}
	return cfg, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/pkg/catalog"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize a new catalog manager cluster with this node as the first master",
	Long: `bootstrap starts this node as the first master of a new cluster: it
forms a single-node Raft quorum, issues the cluster's root certificate
authority, and begins serving the administrative RPC surface.

Additional masters join an already-bootstrapped cluster with
"master join".`,
	RunE: runBootstrap,
}

func init() {
	addConfigFlags(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("Bootstrapping catalog manager cluster (node %s)...\n", cfg.NodeID)
	rs, err := running(cfg, func(m *catalog.Manager) error { return m.Bootstrap() })
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	fmt.Println("Cluster bootstrapped; serving admin RPC on", cfg.RPCBind)
	fmt.Println("Press Ctrl+C to stop.")
	rs.blockUntilSignal()
	return nil
}

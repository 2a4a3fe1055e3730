package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/pkg/catalog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Resume serving an already-initialized catalog manager node",
	Long: `serve restarts a node that is already a member of a cluster -
either the node that ran "bootstrap" or one that previously completed
"join" - resuming from its on-disk Raft log and catalog state rather
than forming or joining a cluster from scratch.

Use "bootstrap" to create a new cluster and "join" the first time a
node is added to one; use "serve" for every restart after that.`,
	RunE: runServe,
}

func init() {
	addConfigFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("Resuming catalog manager node %s...\n", cfg.NodeID)
	// Starting local raft against an existing on-disk log is exactly what
	// Join does; raft itself refuses a second BootstrapCluster call, so
	// there is nothing bootstrap-specific to redo here.
	rs, err := running(cfg, func(m *catalog.Manager) error { return m.Join() })
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	fmt.Println("Serving admin RPC on", cfg.RPCBind)
	fmt.Println("Press Ctrl+C to stop.")
	rs.blockUntilSignal()
	return nil
}

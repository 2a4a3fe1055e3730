package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/pkg/catalog"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join this node to an existing catalog manager cluster",
	Long: `join starts this node's local Raft instance and its administrative
RPC surface, then waits to be added as a voter by the cluster's current
leader. Raft membership changes themselves are driven from the leader
side and are out of this command's scope - once added, this node
picks up the cluster's replicated catalog state automatically.`,
	RunE: runJoin,
}

func init() {
	addConfigFlags(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("Starting catalog manager node %s, waiting to join cluster...\n", cfg.NodeID)
	rs, err := running(cfg, func(m *catalog.Manager) error { return m.Join() })
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	fmt.Println("Serving admin RPC on", cfg.RPCBind, "- waiting to be added as a Raft voter")
	fmt.Println("Press Ctrl+C to stop.")
	rs.blockUntilSignal()
	return nil
}

// Command master runs the catalog manager's control-plane process: the
// Raft-replicated Manager, its background passes, and the administrative
// RPC surface (§6). Grounded in the teacher's cmd/warren entrypoint, with
// container-orchestration subcommands replaced by the catalog's own
// bootstrap/serve/join/apply lifecycle.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "master",
	Short: "Catalog manager control-plane process",
	Long: `master runs one node of the catalog manager: the Raft-replicated
namespace/table/tablet catalog, its leader-lifecycle and background
passes, and the mTLS-secured administrative RPC surface.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(applyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

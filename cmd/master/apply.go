package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/entity"
	"github.com/cuemby/warren/pkg/rpc"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a cluster-bootstrap document to a running master",
	Long: `apply reads a ClusterBootstrap YAML document and creates the
namespaces it declares against a running master's admin RPC surface,
the same declarative workflow the teacher's "apply" command exposes
for its own resource kinds.

Example:
  master apply -f bootstrap.yaml --manager 127.0.0.1:7100`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "ClusterBootstrap YAML file to apply (required)")
	applyCmd.Flags().String("manager", "127.0.0.1:7100", "Master admin RPC address")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	managerAddr, _ := cmd.Flags().GetString("manager")

	doc, err := config.LoadClusterBootstrap(filename)
	if err != nil {
		return err
	}

	c, err := rpc.NewClient(managerAddr)
	if err != nil {
		return fmt.Errorf("connect to manager: %w", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, ns := range doc.Namespaces {
		dbType := entity.DatabaseType(ns.DatabaseType)
		if dbType == "" {
			dbType = entity.DatabasePGSQL
		}
		fmt.Printf("Creating namespace: %s\n", ns.Name)
		resp, err := c.CreateNamespace(ctx, &rpc.CreateNamespaceRequest{
			Name:         ns.Name,
			DatabaseType: dbType,
			Colocated:    ns.Colocated,
		})
		if err != nil {
			return fmt.Errorf("create namespace %s: %w", ns.Name, err)
		}
		if resp.Status.Code != "OK" {
			return fmt.Errorf("create namespace %s: %s", ns.Name, resp.Status.Message)
		}
		fmt.Printf("  namespace created: %s (id=%s)\n", ns.Name, resp.ID)
	}

	return nil
}

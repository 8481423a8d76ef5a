package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string

	rootCmd = &cobra.Command{
		Use:   "kosten",
		Short: "Cloud resource sync and cost allocation engine",
		Long: `Kosten - Cloud Resource Sync Engine

Kosten keeps a unified inventory of resources across cloud provider
accounts, tracks their usage and cost metrics, and allocates spend to
business units by rule.

Connect provider accounts, sync continuously or on demand, and query
the inventory without touching provider APIs.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Kosten {{.Version}} - Cloud Resource Sync Engine
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "kosten.yaml", "Path to configuration file")
}

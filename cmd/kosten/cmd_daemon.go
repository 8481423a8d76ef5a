package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finopskit/kosten/internal/daemon"
	"github.com/finopskit/kosten/telemetry"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the continuous sync daemon",
	Long: `Run Kosten in daemon mode for continuous inventory syncing.

The daemon syncs every configured connection at the configured interval,
compacts the metric sample ledger in the background, and serves the
operator HTTP surface:

- Prometheus metrics on /metrics
- Health and per-connection status on /healthz

Shutdown is graceful on SIGTERM/SIGINT.`,
	Example: `  kosten daemon                       # Run with kosten.yaml
  kosten daemon --config /etc/kosten.yaml`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := context.Background()

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "kosten",
		ServiceVersion: version,
		OTELEndpoint:   a.cfg.Telemetry.Endpoint,
		Insecure:       a.cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	d := daemon.New(a.orch, a.pipeline, a.store, a.cfg.ProviderConnections(), daemon.Config{
		SyncInterval:       a.cfg.Sync.Interval,
		CompactionInterval: a.cfg.Metrics.CompactionInterval,
		ListenAddr:         a.cfg.ListenAddr,
	})

	return d.Run(ctx)
}

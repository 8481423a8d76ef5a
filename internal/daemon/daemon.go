// Package daemon runs the engine's long-lived actors as one run group:
// the periodic sync loop, sample-ledger compaction, and the operator
// HTTP surface. Any actor stopping stops them all.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"

	"github.com/finopskit/kosten/metrics"
	"github.com/finopskit/kosten/orchestrator"
	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/telemetry"
	"github.com/finopskit/kosten/types"
)

// Config holds daemon configuration
type Config struct {
	SyncInterval       time.Duration
	CompactionInterval time.Duration
	ListenAddr         string
}

// Daemon manages continuous syncing
type Daemon struct {
	orch        *orchestrator.Orchestrator
	pipeline    *metrics.Pipeline
	store       *storage.Registry
	connections []types.ProviderConnection
	cfg         Config
	logger      *telemetry.Logger
	startTime   time.Time
	syncCount   atomic.Int64
}

// New creates a daemon around an orchestrator and its pipeline.
func New(orch *orchestrator.Orchestrator, pipeline *metrics.Pipeline, store *storage.Registry, connections []types.ProviderConnection, cfg Config) *Daemon {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 15 * time.Minute
	}
	if cfg.CompactionInterval <= 0 {
		cfg.CompactionInterval = time.Hour
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9464"
	}
	return &Daemon{
		orch:        orch,
		pipeline:    pipeline,
		store:       store,
		connections: connections,
		cfg:         cfg,
		logger:      telemetry.NewLogger("daemon"),
		startTime:   time.Now(),
	}
}

// Run blocks until a signal arrives, the context is cancelled, or an
// actor fails.
func (d *Daemon) Run(ctx context.Context) error {
	var group run.Group

	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	syncCtx, cancelSync := context.WithCancel(ctx)
	group.Add(
		func() error { return d.syncLoop(syncCtx) },
		func(error) { cancelSync() },
	)

	compactCtx, cancelCompact := context.WithCancel(ctx)
	group.Add(
		func() error { return d.pipeline.RunCompaction(compactCtx, d.cfg.CompactionInterval) },
		func(error) { cancelCompact() },
	)

	server := d.httpServer()
	group.Add(
		func() error { return server.ListenAndServe() },
		func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		},
	)

	d.logger.Info().
		Str("listen_addr", d.cfg.ListenAddr).
		Dur("sync_interval", d.cfg.SyncInterval).
		Int("connections", len(d.connections)).
		Msg("daemon starting")

	err := group.Run()

	var signalErr run.SignalError
	switch {
	case err == nil:
	case errors.As(err, &signalErr):
		d.logger.Info().Str("signal", signalErr.Signal.String()).Msg("daemon stopping on signal")
		err = nil
	case errors.Is(err, context.Canceled), errors.Is(err, http.ErrServerClosed):
		err = nil
	}
	return err
}

// syncLoop syncs all connections once immediately, then on every tick.
func (d *Daemon) syncLoop(ctx context.Context) error {
	d.syncAll(ctx)

	ticker := time.NewTicker(d.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.syncAll(ctx)
		}
	}
}

func (d *Daemon) syncAll(ctx context.Context) {
	d.syncCount.Add(1)
	results := d.orch.SyncAll(ctx, d.connections)

	failed := 0
	for _, result := range results {
		if result.Failed() && !result.Skipped {
			failed++
		}
	}
	d.logger.WithContext(ctx).Info().
		Int("connections", len(results)).
		Int("failed", failed).
		Msg("sync cycle completed")
}

// SyncCount returns the number of sync cycles run so far.
func (d *Daemon) SyncCount() int64 {
	return d.syncCount.Load()
}

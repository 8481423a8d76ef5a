package main

import (
	"fmt"
	"path/filepath"

	"github.com/finopskit/kosten/allocation"
	"github.com/finopskit/kosten/config"
	"github.com/finopskit/kosten/metrics"
	"github.com/finopskit/kosten/orchestrator"
	"github.com/finopskit/kosten/reconciler"
	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/tracker"
	"github.com/finopskit/kosten/wal"
)

// app bundles the wired engine for one CLI invocation.
type app struct {
	cfg       *config.Config
	store     *storage.Registry
	audit     *wal.WAL
	tracker   *tracker.Tracker
	pipeline  *metrics.Pipeline
	allocator *allocation.Service
	orch      *orchestrator.Orchestrator
}

// buildApp loads config and wires the engine. Callers must Close.
func buildApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	walDir := cfg.WALDir
	if walDir == "" {
		walDir = filepath.Join(cfg.StorageDir, "wal")
	}
	audit, err := wal.Open(walDir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	trk := tracker.New(store,
		tracker.WithStaleness(cfg.Sync.Staleness),
		tracker.WithFailureThreshold(cfg.Sync.FailureThreshold),
	)
	pipeline := metrics.NewPipeline(store, metrics.WithRetention(cfg.Metrics.Retention))

	opts := []orchestrator.Option{
		orchestrator.WithAudit(audit),
	}

	var allocator *allocation.Service
	if cfg.RulesFile != "" {
		ruleSet, err := allocation.LoadRuleSet(cfg.RulesFile)
		if err != nil {
			_ = audit.Close()
			_ = store.Close()
			return nil, fmt.Errorf("load allocation rules: %w", err)
		}
		engine, err := allocation.NewEngine(ruleSet)
		if err != nil {
			_ = audit.Close()
			_ = store.Close()
			return nil, fmt.Errorf("compile allocation rules: %w", err)
		}
		allocator = allocation.NewService(store, engine)
		opts = append(opts, orchestrator.WithAllocator(allocator))
	}

	orch := orchestrator.New(store, trk, reconciler.NewEngine(store), pipeline,
		orchestrator.Config{
			Workers:          cfg.Sync.Workers,
			MaxRetries:       cfg.Sync.MaxRetries,
			DegradedAfter:    cfg.Sync.DegradedAfter,
			SlowRunThreshold: cfg.Sync.SlowRunThreshold,
		},
		opts...,
	)

	return &app{
		cfg:       cfg,
		store:     store,
		audit:     audit,
		tracker:   trk,
		pipeline:  pipeline,
		allocator: allocator,
		orch:      orch,
	}, nil
}

func (a *app) Close() error {
	walErr := a.audit.Close()
	if err := a.store.Close(); err != nil {
		return err
	}
	return walErr
}

func (a *app) walDir() string {
	if a.cfg.WALDir != "" {
		return a.cfg.WALDir
	}
	return filepath.Join(a.cfg.StorageDir, "wal")
}

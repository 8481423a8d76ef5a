// Package orchestrator schedules sync runs across provider connections:
// a bounded worker pool, strict per-connection serialization, and
// backoff with jitter on transient and rate-limit failures. One
// connection's failures never block another's runs.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/finopskit/kosten/alerting"
	"github.com/finopskit/kosten/connector"
	"github.com/finopskit/kosten/metrics"
	"github.com/finopskit/kosten/reconciler"
	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/telemetry"
	"github.com/finopskit/kosten/tracker"
	"github.com/finopskit/kosten/types"
	"github.com/finopskit/kosten/wal"
)

// Orchestrator coordinates connector runs against the registry.
type Orchestrator struct {
	store     *storage.Registry
	tracker   *tracker.Tracker
	engine    *reconciler.Engine
	pipeline  *metrics.Pipeline
	allocator Allocator
	alerts    alerting.Emitter
	audit     *wal.WAL
	logger    *telemetry.Logger
	cfg       Config

	// connect is injectable for tests; defaults to the factory registry.
	connect connector.Factory

	// slots enforces the per-connection concurrency limit of 1.
	slots sync.Map // connection id -> *atomic.Bool
}

// Allocator re-evaluates cost allocation for changed resources.
type Allocator interface {
	Reevaluate(ctx context.Context, resourceIDs []string) (int, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAllocator wires allocation re-evaluation after reconciliation.
func WithAllocator(a Allocator) Option {
	return func(o *Orchestrator) { o.allocator = a }
}

// WithAlerts wires the outbound alert emitter.
func WithAlerts(e alerting.Emitter) Option {
	return func(o *Orchestrator) { o.alerts = e }
}

// WithAudit journals every run and apply to the write-ahead audit log.
func WithAudit(w *wal.WAL) Option {
	return func(o *Orchestrator) { o.audit = w }
}

// WithConnectorFactory overrides connector construction, for tests.
func WithConnectorFactory(f connector.Factory) Option {
	return func(o *Orchestrator) { o.connect = f }
}

// New creates an orchestrator.
func New(store *storage.Registry, trk *tracker.Tracker, engine *reconciler.Engine, pipeline *metrics.Pipeline, cfg Config, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		store:    store,
		tracker:  trk,
		engine:   engine,
		pipeline: pipeline,
		alerts:   alerting.NewLogEmitter(),
		logger:   telemetry.NewLogger("orchestrator"),
		cfg:      cfg,
		connect:  connector.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SyncAll runs one sync per active connection through the worker pool.
// Soft-deleted connections are skipped. Results come back in input
// order.
func (o *Orchestrator) SyncAll(ctx context.Context, connections []types.ProviderConnection) []RunResult {
	results := make([]RunResult, len(connections))
	sem := make(chan struct{}, o.cfg.Workers)
	var wg sync.WaitGroup

	for i, conn := range connections {
		if conn.DeletedAt != nil {
			results[i] = RunResult{ConnectionID: conn.ID, Skipped: true}
			continue
		}
		wg.Add(1)
		go func(i int, conn types.ProviderConnection) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = RunResult{ConnectionID: conn.ID, Skipped: true, Err: ctx.Err()}
				return
			}
			results[i] = o.SyncConnection(ctx, conn)
		}(i, conn)
	}
	wg.Wait()
	return results
}

// SyncConnection runs one sync for a single connection. If a run is
// already in flight for the connection the trigger is skipped with
// ErrRunInProgress.
func (o *Orchestrator) SyncConnection(ctx context.Context, conn types.ProviderConnection) RunResult {
	result := RunResult{ConnectionID: conn.ID}

	if !o.acquireSlot(conn.ID) {
		result.Skipped = true
		result.Err = ErrRunInProgress
		return result
	}
	defer o.releaseSlot(conn.ID)

	started := time.Now()
	o.runLocked(ctx, conn, &result)
	result.Duration = time.Since(started)

	telemetry.RecordSyncRun(ctx, conn.ID, result.Duration, result.Failed())
	o.checkDuration(ctx, conn.ID, result.Duration)
	o.logResult(ctx, &result)
	return result
}

func (o *Orchestrator) runLocked(ctx context.Context, conn types.ProviderConnection, result *RunResult) {
	plan, err := o.tracker.Begin(conn.ID)
	if err != nil {
		result.Err = err
		result.ErrorClass = connector.ClassTransient
		return
	}
	result.FullSnapshot = plan.Full
	o.journal(wal.EntryRunStarted, conn.ID, map[string]any{
		"full_snapshot": plan.Full,
		"reason":        plan.Reason,
	}, nil)

	client, err := o.connect(ctx, conn)
	if err != nil {
		o.recordFailure(ctx, conn.ID, err, result)
		return
	}
	// A connector without incremental capability always syncs full.
	if !connector.HasCapability(client, connector.CapIncremental) {
		plan = tracker.Plan{Full: true, Reason: "connector lacks incremental capability"}
		result.FullSnapshot = true
	}

	attempt := func() (*attemptOutcome, error) {
		result.Attempts++
		outcome, err := o.attemptSync(ctx, conn, client, plan)
		if err != nil {
			return nil, o.wrapForRetry(err)
		}
		return outcome, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = o.cfg.MaxRateLimitWait

	outcome, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(o.cfg.MaxRetries)),
	)
	if err != nil {
		o.journal(wal.EntryRunFailed, conn.ID, map[string]any{"attempts": result.Attempts}, err)
		o.recordFailure(ctx, conn.ID, err, result)
		return
	}

	result.ResourcesObserved = outcome.observed
	result.Created = len(outcome.changes.Created)
	result.Updated = len(outcome.changes.Updated)
	result.Tombstoned = len(outcome.changes.Tombstoned)
	result.SamplesAccepted = outcome.samplesAccepted
	result.SamplesRejected = outcome.samplesRejected

	o.journal(wal.EntryRunCompleted, conn.ID, map[string]any{
		"observed":   result.ResourcesObserved,
		"created":    result.Created,
		"updated":    result.Updated,
		"tombstoned": result.Tombstoned,
	}, nil)
	o.recordSuccess(ctx, conn.ID)

	if live, err := o.store.LiveResources(conn.ID); err == nil {
		telemetry.RecordRegistryState(ctx, o.store.CurrentRevision(), len(live))
	}
}

// wrapForRetry translates the connector taxonomy into backoff control:
// unauthorized and permanent failures stop retrying immediately, rate
// limits honor the provider's retry-after hint.
func (o *Orchestrator) wrapForRetry(err error) error {
	switch connector.ClassOf(err) {
	case connector.ClassUnauthorized, connector.ClassPermanent:
		return backoff.Permanent(err)
	case connector.ClassRateLimited:
		if hint := connector.RetryAfterHint(err); hint > 0 {
			if hint > o.cfg.MaxRateLimitWait {
				return backoff.Permanent(err)
			}
			return backoff.RetryAfter(int(hint.Seconds()) + 1)
		}
		return err
	default:
		return err
	}
}

type attemptOutcome struct {
	changes         *types.ChangeSet
	observed        int
	samplesAccepted int
	samplesRejected int
}

// attemptSync is one full fetch-reconcile-commit pass. A failed attempt
// leaves cursor and registry untouched, so the retry re-fetches the
// same delta and the idempotent merge absorbs re-application.
func (o *Orchestrator) attemptSync(ctx context.Context, conn types.ProviderConnection, client connector.Connector, plan tracker.Plan) (*attemptOutcome, error) {
	run := o.engine.Begin(conn.ID, client.Name(), plan.Full)
	outcome := &attemptOutcome{}

	var nativeIDs []string
	watermark, err := connector.EachResource(ctx, client, plan.Watermark, func(raw types.RawResource) error {
		outcome.observed++
		nativeIDs = append(nativeIDs, raw.NativeID)
		return run.Observe(raw)
	})
	if err != nil {
		return nil, err
	}

	changes, err := run.Apply(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", conn.ID, err)
	}
	outcome.changes = changes

	if err := o.ingestMetrics(ctx, conn.ID, client, nativeIDs, outcome); err != nil {
		// Metric ingestion failures do not invalidate the reconciled
		// registry state; log and keep the run successful.
		o.logger.WithContext(ctx).Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("metric ingestion failed")
	}

	if !changes.Empty() {
		o.journal(wal.EntryChangesApplied, conn.ID, map[string]any{
			"created":    len(changes.Created),
			"updated":    len(changes.Updated),
			"tombstoned": len(changes.Tombstoned),
			"revision":   o.store.CurrentRevision(),
		}, nil)
	}

	// Commit only after reconciliation is durably applied.
	if err := o.tracker.Commit(conn.ID, watermark); err != nil {
		return nil, fmt.Errorf("commit cursor %s: %w", conn.ID, err)
	}
	o.journal(wal.EntryCursorCommitted, conn.ID, map[string]any{"watermark": watermark}, nil)

	if o.allocator != nil && !changes.Empty() {
		if _, err := o.allocator.Reevaluate(ctx, changes.Touched()); err != nil {
			o.logger.WithContext(ctx).Warn().
				Err(err).
				Str("connection_id", conn.ID).
				Msg("allocation reevaluation failed")
		}
	}
	return outcome, nil
}

func (o *Orchestrator) ingestMetrics(ctx context.Context, connID string, client connector.Connector, nativeIDs []string, outcome *attemptOutcome) error {
	source, ok := client.(connector.MetricsSource)
	if !ok || !connector.HasCapability(client, connector.CapMetrics) || len(nativeIDs) == 0 {
		return nil
	}
	samples, err := source.DescribeMetrics(ctx, nativeIDs)
	if err != nil {
		return err
	}
	// Connector samples are keyed by native id; remap to synthetic ids.
	remapped := make([]types.MetricSample, 0, len(samples))
	for _, sample := range samples {
		res, found, err := o.store.LookupNative(connID, sample.ResourceID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		sample.ResourceID = res.ID
		remapped = append(remapped, sample)
	}
	accepted, rejected, err := o.pipeline.IngestBatch(ctx, remapped)
	outcome.samplesAccepted = accepted
	outcome.samplesRejected = rejected
	telemetry.RecordSamplesIngested(ctx, connID, accepted)
	return err
}

// journal best-effort appends to the audit log. Audit write failures
// never fail a sync run.
func (o *Orchestrator) journal(entryType wal.EntryType, connID string, data any, cause error) {
	if o.audit == nil {
		return
	}
	var err error
	if cause != nil {
		err = o.audit.AppendError(entryType, connID, data, cause)
	} else {
		err = o.audit.Append(entryType, connID, data)
	}
	if err != nil {
		o.logger.Warn().Err(err).Str("connection_id", connID).Msg("audit journal write failed")
	}
}

func (o *Orchestrator) acquireSlot(connID string) bool {
	value, _ := o.slots.LoadOrStore(connID, new(atomic.Bool))
	return value.(*atomic.Bool).CompareAndSwap(false, true)
}

func (o *Orchestrator) releaseSlot(connID string) {
	if value, ok := o.slots.Load(connID); ok {
		value.(*atomic.Bool).Store(false)
	}
}

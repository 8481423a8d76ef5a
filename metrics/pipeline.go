// Package metrics ingests time-series usage and cost samples for
// registry resources. The sample ledger is append-only; compaction
// folds old raw samples into lossy hourly rollups to bound growth.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/telemetry"
	"github.com/finopskit/kosten/types"
)

// DefaultRetention is how long raw samples are kept before compaction.
const DefaultRetention = 7 * 24 * time.Hour

// Pipeline appends samples and periodically compacts the ledger.
type Pipeline struct {
	store     *storage.Registry
	logger    *telemetry.Logger
	retention time.Duration
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetention overrides the raw-sample retention window.
func WithRetention(d time.Duration) Option {
	return func(p *Pipeline) { p.retention = d }
}

// NewPipeline creates a metrics pipeline over the registry.
func NewPipeline(store *storage.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		logger:    telemetry.NewLogger("metrics"),
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest appends one sample. A timestamp already present for the same
// (resource, metric) series is rejected with storage.ErrDuplicateSample;
// the ledger is never overwritten.
func (p *Pipeline) Ingest(ctx context.Context, sample types.MetricSample) error {
	if sample.ResourceID == "" || sample.MetricName == "" {
		return fmt.Errorf("sample missing resource id or metric name")
	}
	if sample.Timestamp.IsZero() {
		return fmt.Errorf("sample for %s/%s missing timestamp", sample.ResourceID, sample.MetricName)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.store.AppendSample(sample)
}

// IngestBatch appends samples one by one, skipping duplicates instead of
// failing the batch. Returns accepted and rejected counts.
func (p *Pipeline) IngestBatch(ctx context.Context, samples []types.MetricSample) (int, int, error) {
	accepted, rejected := 0, 0
	for _, sample := range samples {
		err := p.Ingest(ctx, sample)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, storage.ErrDuplicateSample):
			rejected++
		default:
			return accepted, rejected, err
		}
	}
	if rejected > 0 {
		p.logger.WithContext(ctx).Debug().
			Int("accepted", accepted).
			Int("rejected", rejected).
			Msg("batch ingested with duplicate timestamps rejected")
	}
	return accepted, rejected, nil
}

// Compact folds raw samples older than the retention window into hourly
// rollups. Lossy by design: only min/max/avg/sum survive.
func (p *Pipeline) Compact(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.retention)
	compacted, err := p.store.CompactSamples(cutoff)
	if err != nil {
		return 0, fmt.Errorf("compact samples: %w", err)
	}
	if compacted > 0 {
		p.logger.WithContext(ctx).Info().
			Int("samples", compacted).
			Time("cutoff", cutoff).
			Msg("sample ledger compacted")
	}
	return compacted, nil
}

// RunCompaction loops compaction until the context is cancelled. Meant
// to be one actor in the daemon's run group.
func (p *Pipeline) RunCompaction(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Compact(ctx); err != nil {
				p.logger.WithContext(ctx).Error().Err(err).Msg("compaction failed")
			}
		}
	}
}

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/types"
)

func setupPipeline(t *testing.T, opts ...Option) (*Pipeline, *storage.Registry) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewPipeline(store, opts...), store
}

func TestIngest_AppendOnly(t *testing.T) {
	p, _ := setupPipeline(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sample := types.MetricSample{ResourceID: "res-a", MetricName: "cost_usd", Timestamp: ts, Value: 0.42}
	require.NoError(t, p.Ingest(ctx, sample))

	err := p.Ingest(ctx, sample)
	require.ErrorIs(t, err, storage.ErrDuplicateSample)

	sample.Timestamp = ts.Add(time.Hour)
	require.NoError(t, p.Ingest(ctx, sample))
}

func TestIngest_Validation(t *testing.T) {
	p, _ := setupPipeline(t)
	ctx := context.Background()

	require.Error(t, p.Ingest(ctx, types.MetricSample{MetricName: "cost_usd", Timestamp: time.Now()}))
	require.Error(t, p.Ingest(ctx, types.MetricSample{ResourceID: "res-a", Timestamp: time.Now()}))
	require.Error(t, p.Ingest(ctx, types.MetricSample{ResourceID: "res-a", MetricName: "cost_usd"}))
}

func TestIngestBatch_SkipsDuplicates(t *testing.T) {
	p, _ := setupPipeline(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := []types.MetricSample{
		{ResourceID: "res-a", MetricName: "cost_usd", Timestamp: ts, Value: 1},
		{ResourceID: "res-a", MetricName: "cost_usd", Timestamp: ts, Value: 2},
		{ResourceID: "res-a", MetricName: "cost_usd", Timestamp: ts.Add(time.Minute), Value: 3},
	}
	accepted, rejected, err := p.IngestBatch(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 2, accepted)
	require.Equal(t, 1, rejected)
}

func TestCompact_RespectsRetention(t *testing.T) {
	p, store := setupPipeline(t, WithRetention(24*time.Hour))
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, p.Ingest(ctx, types.MetricSample{ResourceID: "res-a", MetricName: "cost_usd", Timestamp: old, Value: 2}))
	require.NoError(t, p.Ingest(ctx, types.MetricSample{ResourceID: "res-a", MetricName: "cost_usd", Timestamp: old.Add(time.Minute), Value: 4}))
	require.NoError(t, p.Ingest(ctx, types.MetricSample{ResourceID: "res-a", MetricName: "cost_usd", Timestamp: recent, Value: 8}))

	compacted, err := p.Compact(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, compacted)

	rollups, err := store.RollupsFor("res-a", "cost_usd", old.Add(-time.Hour), old.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	require.Equal(t, 6.0, rollups[0].Sum)
	require.Equal(t, 3.0, rollups[0].Avg())
}

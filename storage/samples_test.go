package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finopskit/kosten/types"
)

func TestAppendSample_RejectsDuplicateTimestamp(t *testing.T) {
	r := openTestRegistry(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sample := types.MetricSample{ResourceID: "res-a", MetricName: "cpu_hours", Timestamp: ts, Value: 1.0}
	require.NoError(t, r.AppendSample(sample))

	// Same timestamp, even with a different value, is rejected.
	sample.Value = 2.0
	err := r.AppendSample(sample)
	require.ErrorIs(t, err, ErrDuplicateSample)

	// A later timestamp succeeds.
	sample.Timestamp = ts.Add(time.Minute)
	require.NoError(t, r.AppendSample(sample))

	stored, err := r.SamplesFor("res-a", "cpu_hours", ts, ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, 1.0, stored[0].Value)
}

func TestSamplesFor_SeriesIsolation(t *testing.T) {
	r := openTestRegistry(t)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.AppendSample(types.MetricSample{ResourceID: "res-a", MetricName: "cpu_hours", Timestamp: ts, Value: 1}))
	require.NoError(t, r.AppendSample(types.MetricSample{ResourceID: "res-a", MetricName: "cost_usd", Timestamp: ts, Value: 9}))
	require.NoError(t, r.AppendSample(types.MetricSample{ResourceID: "res-b", MetricName: "cpu_hours", Timestamp: ts, Value: 5}))

	stored, err := r.SamplesFor("res-a", "cpu_hours", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, 1.0, stored[0].Value)
}

func TestCompactSamples(t *testing.T) {
	r := openTestRegistry(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	values := []float64{4, 2, 6}
	for i, v := range values {
		require.NoError(t, r.AppendSample(types.MetricSample{
			ResourceID: "res-a",
			MetricName: "cpu_hours",
			Timestamp:  base.Add(time.Duration(i) * 10 * time.Minute),
			Value:      v,
		}))
	}
	// Recent sample outside the compaction window.
	recent := base.Add(48 * time.Hour)
	require.NoError(t, r.AppendSample(types.MetricSample{
		ResourceID: "res-a", MetricName: "cpu_hours", Timestamp: recent, Value: 1,
	}))

	compacted, err := r.CompactSamples(base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, compacted)

	// Raw samples in the hour are gone, the recent one survives.
	raw, err := r.SamplesFor("res-a", "cpu_hours", base, recent.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, raw, 1)
	require.Equal(t, recent, raw[0].Timestamp)

	rollups, err := r.RollupsFor("res-a", "cpu_hours", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	require.Equal(t, 2.0, rollups[0].Min)
	require.Equal(t, 6.0, rollups[0].Max)
	require.Equal(t, 12.0, rollups[0].Sum)
	require.Equal(t, int64(3), rollups[0].Count)
	require.Equal(t, 4.0, rollups[0].Avg())
}

func TestCompactSamples_Idempotent(t *testing.T) {
	r := openTestRegistry(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.AppendSample(types.MetricSample{
		ResourceID: "res-a", MetricName: "cpu_hours", Timestamp: base, Value: 3,
	}))

	first, err := r.CompactSamples(base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, first)

	second, err := r.CompactSamples(base.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, second)
}

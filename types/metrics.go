package types

import "time"

// MetricSample is one point in the append-only usage/cost ledger, keyed by
// (ResourceID, MetricName, Timestamp). Superseding an existing timestamp
// is rejected, never overwritten.
type MetricSample struct {
	ResourceID string    `json:"resource_id"`
	MetricName string    `json:"metric_name"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}

// MetricRollup is a lossy hourly aggregate produced by compaction of raw
// samples past the retention window.
type MetricRollup struct {
	ResourceID string    `json:"resource_id"`
	MetricName string    `json:"metric_name"`
	Hour       time.Time `json:"hour"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Sum        float64   `json:"sum"`
	Count      int64     `json:"count"`
}

// Avg returns the mean of the compacted samples.
func (r *MetricRollup) Avg() float64 {
	if r.Count == 0 {
		return 0
	}
	return r.Sum / float64(r.Count)
}

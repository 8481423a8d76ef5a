package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recording helpers used by the sync path. All of them no-op until
// InitOTEL has run, so library code can call them unconditionally.

// RecordSyncRun records one completed sync run.
func RecordSyncRun(ctx context.Context, connectionID string, duration time.Duration, failed bool) {
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("connection_id", connectionID),
		attribute.String("outcome", outcome),
	)
	if SyncRuns != nil {
		SyncRuns.Add(ctx, 1, attrs)
	}
	if SyncDuration != nil {
		SyncDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordSyncError counts one sync failure by error class.
func RecordSyncError(ctx context.Context, connectionID, class string) {
	if SyncErrors == nil {
		return
	}
	SyncErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("connection_id", connectionID),
		attribute.String("error_class", class),
	))
}

// RecordSamplesIngested counts accepted metric samples.
func RecordSamplesIngested(ctx context.Context, connectionID string, count int) {
	if SamplesIngested == nil || count == 0 {
		return
	}
	SamplesIngested.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("connection_id", connectionID),
	))
}

// RecordRegistryState publishes the current registry revision and live
// resource count.
func RecordRegistryState(ctx context.Context, revision int64, resources int) {
	if RegistryRevision != nil {
		RegistryRevision.Record(ctx, revision)
	}
	if ResourcesTracked != nil {
		ResourcesTracked.Record(ctx, int64(resources))
	}
}

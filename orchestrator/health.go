package orchestrator

import (
	"context"
	"time"

	"github.com/finopskit/kosten/alerting"
	"github.com/finopskit/kosten/connector"
	"github.com/finopskit/kosten/telemetry"
	"github.com/finopskit/kosten/types"
)

// recordSuccess marks the connection healthy and clears any degraded
// state from earlier failures.
func (o *Orchestrator) recordSuccess(ctx context.Context, connID string) {
	now := time.Now()
	health, found, err := o.store.GetHealth(connID)
	if err != nil || !found {
		health = &types.ConnectionHealth{ConnectionID: connID}
	}
	health.Status = types.ConnectionHealthy
	health.LastSuccessAt = now
	health.ConsecutiveFailures = 0
	health.LastFailureReason = ""
	if err := o.store.PutHealth(*health); err != nil {
		o.logger.WithContext(ctx).Error().
			Err(err).
			Str("connection_id", connID).
			Msg("failed to persist connection health")
	}
}

// recordFailure updates health and the failure count, and raises alerts
// when the connection crosses the degraded threshold. Rate-limit
// failures never count toward the threshold.
func (o *Orchestrator) recordFailure(ctx context.Context, connID string, err error, result *RunResult) {
	result.Err = err
	result.ErrorClass = connector.ClassOf(err)
	telemetry.RecordSyncError(ctx, connID, string(result.ErrorClass))

	now := time.Now()
	health, found, healthErr := o.store.GetHealth(connID)
	if healthErr != nil || !found {
		health = &types.ConnectionHealth{ConnectionID: connID, Status: types.ConnectionHealthy}
	}
	health.LastFailureAt = now
	health.LastFailureReason = summarize(result.ErrorClass)

	failures := health.ConsecutiveFailures
	if result.ErrorClass != connector.ClassRateLimited {
		count, failErr := o.tracker.Fail(connID)
		if failErr != nil {
			o.logger.WithContext(ctx).Error().
				Err(failErr).
				Str("connection_id", connID).
				Msg("failed to record sync failure")
		} else {
			failures = count
		}
		health.ConsecutiveFailures = failures
	}

	if failures >= o.cfg.DegradedAfter && health.Status != types.ConnectionDegraded {
		health.Status = types.ConnectionDegraded
		o.emit(ctx, alerting.Event{
			Type:         alerting.EventConnectionDegraded,
			ConnectionID: connID,
			Reason:       health.LastFailureReason,
			OccurredAt:   now,
			Fields:       map[string]any{"consecutive_failures": failures},
		})
	}

	if result.ErrorClass == connector.ClassUnauthorized || result.ErrorClass == connector.ClassPermanent {
		o.emit(ctx, alerting.Event{
			Type:         alerting.EventPermanentErrors,
			ConnectionID: connID,
			Reason:       health.LastFailureReason,
			OccurredAt:   now,
			Fields:       map[string]any{"error_class": string(result.ErrorClass)},
		})
	}

	if putErr := o.store.PutHealth(*health); putErr != nil {
		o.logger.WithContext(ctx).Error().
			Err(putErr).
			Str("connection_id", connID).
			Msg("failed to persist connection health")
	}
}

// checkDuration raises a sync-duration anomaly for successful but slow
// runs.
func (o *Orchestrator) checkDuration(ctx context.Context, connID string, duration time.Duration) {
	if duration < o.cfg.SlowRunThreshold {
		return
	}
	o.emit(ctx, alerting.Event{
		Type:         alerting.EventSyncDurationSpike,
		ConnectionID: connID,
		Reason:       "sync run exceeded duration threshold",
		OccurredAt:   time.Now(),
		Fields: map[string]any{
			"duration":  duration.String(),
			"threshold": o.cfg.SlowRunThreshold.String(),
		},
	})
}

func (o *Orchestrator) emit(ctx context.Context, event alerting.Event) {
	if o.alerts == nil {
		return
	}
	if err := o.alerts.Emit(ctx, event); err != nil {
		o.logger.WithContext(ctx).Error().
			Err(err).
			Str("event_type", string(event.Type)).
			Msg("failed to emit alert")
	}
}

func (o *Orchestrator) logResult(ctx context.Context, result *RunResult) {
	log := o.logger.WithContext(ctx)
	if result.Failed() {
		log.Error().
			Err(result.Err).
			Str("connection_id", result.ConnectionID).
			Str("error_class", string(result.ErrorClass)).
			Int("attempts", result.Attempts).
			Dur("duration", result.Duration).
			Msg("sync run failed")
		return
	}
	if result.Skipped {
		log.Debug().
			Str("connection_id", result.ConnectionID).
			Msg("sync run skipped")
		return
	}
	log.Info().
		Str("connection_id", result.ConnectionID).
		Bool("full_snapshot", result.FullSnapshot).
		Int("observed", result.ResourcesObserved).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("tombstoned", result.Tombstoned).
		Int("samples_accepted", result.SamplesAccepted).
		Int("attempts", result.Attempts).
		Dur("duration", result.Duration).
		Msg("sync run completed")
}

// summarize maps an error class to an operator-facing reason. Raw
// provider errors stay out of health rows and alert payloads.
func summarize(class connector.ErrorClass) string {
	switch class {
	case connector.ClassUnauthorized:
		return "credentials rejected by provider"
	case connector.ClassRateLimited:
		return "provider rate limit exceeded"
	case connector.ClassPermanent:
		return "permanent provider error"
	default:
		return "transient provider error"
	}
}

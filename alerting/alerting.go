// Package alerting defines the outbound event interface for the external
// alerting collaborator: degraded connections, repeated permanent errors
// and sync-duration anomalies.
package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/finopskit/kosten/telemetry"
)

// EventType names one alert condition.
type EventType string

const (
	EventConnectionDegraded EventType = "connection_degraded"
	EventPermanentErrors    EventType = "permanent_errors"
	EventSyncDurationSpike  EventType = "sync_duration_spike"
)

// Event is one structured alert. Reason is an operator-facing summary;
// raw provider errors are never forwarded.
type Event struct {
	Type         EventType      `json:"type"`
	ConnectionID string         `json:"connection_id"`
	Reason       string         `json:"reason"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// Emitter sends events to a backend.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns the first error.
func (m *MultiEmitter) Emit(ctx context.Context, event Event) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}

// LogEmitter writes events as structured log lines, the default backend
// when no external alerting is wired.
type LogEmitter struct {
	logger *telemetry.Logger
}

// NewLogEmitter creates a log-backed emitter.
func NewLogEmitter() *LogEmitter {
	return &LogEmitter{logger: telemetry.NewLogger("alerting")}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(ctx context.Context, event Event) error {
	entry := l.logger.WithContext(ctx).Warn().
		Str("event_type", string(event.Type)).
		Str("connection_id", event.ConnectionID).
		Time("occurred_at", event.OccurredAt).
		Str("reason", event.Reason)
	for key, value := range event.Fields {
		entry = entry.Interface(key, value)
	}
	entry.Msg("alert event")
	return nil
}

// Close implements Emitter.
func (l *LogEmitter) Close() error { return nil }

// Recorder buffers events in memory, for tests and inspection.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an in-memory emitter.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Close implements Emitter.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Package tracker decides full vs. delta sync per connection and owns
// the sync cursors. Nothing outside the sync subsystem reads or writes
// cursors.
package tracker

import (
	"fmt"
	"time"

	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/types"
)

const (
	// DefaultStaleness is how old a watermark may get before the tracker
	// assumes provider state drifted and forces a full resync.
	DefaultStaleness = 24 * time.Hour
	// DefaultFailureThreshold is the consecutive-failure count beyond
	// which the stored watermark is no longer trusted.
	DefaultFailureThreshold = 3
)

// Plan tells the orchestrator how to run the next sync.
type Plan struct {
	Full      bool
	Watermark string
	Reason    string
}

// Tracker persists per-connection sync cursors in the registry.
type Tracker struct {
	store            *storage.Registry
	staleness        time.Duration
	failureThreshold int
	now              func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStaleness overrides the watermark staleness threshold.
func WithStaleness(d time.Duration) Option {
	return func(t *Tracker) { t.staleness = d }
}

// WithFailureThreshold overrides the consecutive-failure threshold.
func WithFailureThreshold(n int) Option {
	return func(t *Tracker) { t.failureThreshold = n }
}

func withClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker over the registry's cursor storage.
func New(store *storage.Registry, opts ...Option) *Tracker {
	t := &Tracker{
		store:            store,
		staleness:        DefaultStaleness,
		failureThreshold: DefaultFailureThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin returns the plan for the next sync run. Full resync is forced
// when no cursor exists, the watermark went stale, or the connection
// failed too many times in a row.
func (t *Tracker) Begin(connectionID string) (Plan, error) {
	cursor, found, err := t.store.GetCursor(connectionID)
	if err != nil {
		return Plan{}, fmt.Errorf("begin sync %s: %w", connectionID, err)
	}
	switch {
	case !found || cursor.Watermark == "":
		return Plan{Full: true, Reason: "no prior cursor"}, nil
	case t.now().Sub(cursor.LastSuccessAt) > t.staleness:
		return Plan{Full: true, Reason: "cursor stale"}, nil
	case cursor.ConsecutiveFailures > t.failureThreshold:
		return Plan{Full: true, Reason: "failure threshold exceeded"}, nil
	default:
		return Plan{Watermark: cursor.Watermark}, nil
	}
}

// Commit records a successful sync. Called only after the corresponding
// reconciliation has been durably applied; a crash before Commit makes
// the next run re-fetch the same delta, which the idempotent merge
// tolerates.
func (t *Tracker) Commit(connectionID, watermark string) error {
	return t.store.PutCursor(types.SyncCursor{
		ConnectionID:  connectionID,
		Watermark:     watermark,
		LastSuccessAt: t.now().UTC(),
	})
}

// Fail bumps the consecutive-failure count, preserving the stored
// watermark, and returns the new count.
func (t *Tracker) Fail(connectionID string) (int, error) {
	cursor, found, err := t.store.GetCursor(connectionID)
	if err != nil {
		return 0, fmt.Errorf("fail sync %s: %w", connectionID, err)
	}
	if !found {
		cursor = &types.SyncCursor{ConnectionID: connectionID}
	}
	cursor.ConsecutiveFailures++
	if err := t.store.PutCursor(*cursor); err != nil {
		return 0, err
	}
	return cursor.ConsecutiveFailures, nil
}

// Reset drops the cursor, forcing the next run to full resync. This is
// the only way a cursor is reset; normal failures just accumulate.
func (t *Tracker) Reset(connectionID string) error {
	return t.store.DeleteCursor(connectionID)
}

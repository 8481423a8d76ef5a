package orchestrator

import (
	"errors"
	"time"

	"github.com/finopskit/kosten/connector"
)

// ErrRunInProgress is returned when a sync is triggered for a connection
// whose previous run is still executing. Overlapping triggers are
// skipped, never queued.
var ErrRunInProgress = errors.New("sync already in progress for connection")

// Config bounds the orchestrator's scheduling behavior.
type Config struct {
	// Workers is the global worker pool size across connections.
	Workers int
	// MaxRetries caps attempts per scheduled run before the run fails.
	MaxRetries int
	// DegradedAfter is the consecutive-failure count that marks a
	// connection degraded and surfaces it to alerting.
	DegradedAfter int
	// MaxRateLimitWait caps how long a provider retry-after hint is
	// honored before the run gives up.
	MaxRateLimitWait time.Duration
	// SlowRunThreshold triggers a sync-duration anomaly event.
	SlowRunThreshold time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		MaxRetries:       3,
		DegradedAfter:    3,
		MaxRateLimitWait: 2 * time.Minute,
		SlowRunThreshold: 10 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = defaults.DegradedAfter
	}
	if c.MaxRateLimitWait <= 0 {
		c.MaxRateLimitWait = defaults.MaxRateLimitWait
	}
	if c.SlowRunThreshold <= 0 {
		c.SlowRunThreshold = defaults.SlowRunThreshold
	}
}

// RunResult summarizes one connection's sync run.
type RunResult struct {
	ConnectionID      string               `json:"connection_id"`
	Skipped           bool                 `json:"skipped,omitempty"`
	FullSnapshot      bool                 `json:"full_snapshot"`
	ResourcesObserved int                  `json:"resources_observed"`
	Created           int                  `json:"created"`
	Updated           int                  `json:"updated"`
	Tombstoned        int                  `json:"tombstoned"`
	SamplesAccepted   int                  `json:"samples_accepted"`
	SamplesRejected   int                  `json:"samples_rejected"`
	Attempts          int                  `json:"attempts"`
	Duration          time.Duration        `json:"duration"`
	ErrorClass        connector.ErrorClass `json:"error_class,omitempty"`
	Err               error                `json:"-"`
}

// Failed reports whether the run ended in error.
func (r *RunResult) Failed() bool { return r.Err != nil }

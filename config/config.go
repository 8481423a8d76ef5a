// Package config loads the engine configuration file: storage paths,
// sync scheduling, metric retention, and the provider connections to
// sync.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/finopskit/kosten/types"
)

// Config represents the main configuration
type Config struct {
	Version     int          `yaml:"version"`
	StorageDir  string       `yaml:"storage_dir"`
	WALDir      string       `yaml:"wal_dir,omitempty"`
	RulesFile   string       `yaml:"rules_file,omitempty"`
	ListenAddr  string       `yaml:"listen_addr,omitempty"`
	Sync        Sync         `yaml:"sync,omitempty"`
	Metrics     Metrics      `yaml:"metrics,omitempty"`
	Telemetry   Telemetry    `yaml:"telemetry,omitempty"`
	Connections []Connection `yaml:"connections"`
}

// Sync tunes the orchestrator's scheduling behavior.
type Sync struct {
	Interval         time.Duration `yaml:"interval"`
	Workers          int           `yaml:"workers"`
	MaxRetries       int           `yaml:"max_retries"`
	Staleness        time.Duration `yaml:"staleness"`
	FailureThreshold int           `yaml:"failure_threshold"`
	DegradedAfter    int           `yaml:"degraded_after"`
	SlowRunThreshold time.Duration `yaml:"slow_run_threshold"`
}

// Metrics tunes the sample ledger.
type Metrics struct {
	Retention          time.Duration `yaml:"retention"`
	CompactionInterval time.Duration `yaml:"compaction_interval"`
}

// Telemetry points the OTEL exporters at a collector.
type Telemetry struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// Connection is one provider connection entry.
type Connection struct {
	ID            string         `yaml:"id"`
	Provider      string         `yaml:"provider"`
	Region        string         `yaml:"region,omitempty"`
	CredentialRef string         `yaml:"credential_ref,omitempty"`
	Scope         string         `yaml:"scope,omitempty"`
	Options       map[string]any `yaml:"options,omitempty"`
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9464"
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = 15 * time.Minute
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 4
	}
	if c.Sync.MaxRetries <= 0 {
		c.Sync.MaxRetries = 3
	}
	if c.Sync.Staleness <= 0 {
		c.Sync.Staleness = 24 * time.Hour
	}
	if c.Sync.FailureThreshold <= 0 {
		c.Sync.FailureThreshold = 3
	}
	if c.Sync.DegradedAfter <= 0 {
		c.Sync.DegradedAfter = 3
	}
	if c.Sync.SlowRunThreshold <= 0 {
		c.Sync.SlowRunThreshold = 10 * time.Minute
	}
	if c.Metrics.Retention <= 0 {
		c.Metrics.Retention = 7 * 24 * time.Hour
	}
	if c.Metrics.CompactionInterval <= 0 {
		c.Metrics.CompactionInterval = time.Hour
	}
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("version is required")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir is required")
	}
	seen := make(map[string]bool, len(c.Connections))
	for i, conn := range c.Connections {
		if conn.ID == "" {
			return fmt.Errorf("connection %d: id is required", i)
		}
		if conn.Provider == "" {
			return fmt.Errorf("connection %q: provider is required", conn.ID)
		}
		if seen[conn.ID] {
			return fmt.Errorf("connection %q: duplicate id", conn.ID)
		}
		seen[conn.ID] = true
	}
	return nil
}

// ProviderConnections converts the config entries to the sync core's
// connection type.
func (c *Config) ProviderConnections() []types.ProviderConnection {
	out := make([]types.ProviderConnection, 0, len(c.Connections))
	for _, conn := range c.Connections {
		out = append(out, types.ProviderConnection{
			ID:            conn.ID,
			Provider:      conn.Provider,
			Region:        conn.Region,
			CredentialRef: conn.CredentialRef,
			Scope:         conn.Scope,
			Options:       conn.Options,
		})
	}
	return out
}

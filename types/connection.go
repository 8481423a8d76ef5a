package types

import "time"

// ConnectionStatus is the health of one provider connection as seen by
// the sync subsystem.
type ConnectionStatus string

const (
	ConnectionHealthy  ConnectionStatus = "healthy"
	ConnectionDegraded ConnectionStatus = "degraded"
)

// ProviderConnection is one credentialed link to a provider account.
// Connections are created by the platform's connection manager; the sync
// core only reads them and reports health back.
type ProviderConnection struct {
	ID            string         `json:"id"`
	Provider      string         `json:"provider"`
	Region        string         `json:"region,omitempty"`
	CredentialRef string         `json:"credential_ref,omitempty"`
	Scope         string         `json:"scope,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
}

// ConnectionHealth is the per-connection state surfaced to operators and
// the alerting collaborator. Raw provider errors are summarized, never
// passed through.
type ConnectionHealth struct {
	ConnectionID        string           `json:"connection_id"`
	Status              ConnectionStatus `json:"status"`
	LastSuccessAt       time.Time        `json:"last_success_at,omitempty"`
	LastFailureAt       time.Time        `json:"last_failure_at,omitempty"`
	LastFailureReason   string           `json:"last_failure_reason,omitempty"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
}

// SyncCursor holds the incremental sync watermark for one connection.
// Owned exclusively by the sync subsystem.
type SyncCursor struct {
	ConnectionID        string    `json:"connection_id"`
	Watermark           string    `json:"watermark,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
}

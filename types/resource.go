package types

import "time"

// ResourceKind buckets heterogeneous provider resources into the
// registry's universal categories.
type ResourceKind string

const (
	KindCompute  ResourceKind = "compute"
	KindStorage  ResourceKind = "storage"
	KindNetwork  ResourceKind = "network"
	KindDatabase ResourceKind = "database"
	KindOther    ResourceKind = "other"
)

// ResourceStatus is the normalized lifecycle state of a resource.
type ResourceStatus string

const (
	StatusActive     ResourceStatus = "active"
	StatusStopped    ResourceStatus = "stopped"
	StatusTerminated ResourceStatus = "terminated"
	StatusUnknown    ResourceStatus = "unknown"
)

// Resource is a universal registry entry. ID is a synthetic key that never
// changes for the lifetime of the row; (ConnectionID, NativeID) is unique
// among live rows and immutable once assigned.
type Resource struct {
	ID           string         `json:"id"`
	ConnectionID string         `json:"connection_id"`
	NativeID     string         `json:"native_id"`
	Provider     string         `json:"provider"`
	Region       string         `json:"region,omitempty"`
	Name         string         `json:"name,omitempty"`
	Kind         ResourceKind   `json:"kind"`
	Status       ResourceStatus `json:"status"`
	FirstSeenAt  time.Time      `json:"first_seen_at"`
	LastSeenAt   time.Time      `json:"last_seen_at"`
	LastSyncedAt time.Time      `json:"last_synced_at"`
	// RawAttributes is the provider-specific attribute map. The registry
	// treats it as opaque; only the owning connector knows its shape.
	RawAttributes map[string]any `json:"raw_attributes,omitempty"`
	// DeletedAt marks a tombstone. Tombstoned rows stay in the registry
	// forever so metric and tag lineage survives native id reuse.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the resource has been tombstoned.
func (r *Resource) IsDeleted() bool {
	return r.DeletedAt != nil
}

// RawResource is what a connector returns: provider-native, uninterpreted.
type RawResource struct {
	NativeID   string            `json:"native_id"`
	Kind       ResourceKind      `json:"kind"`
	Status     ResourceStatus    `json:"status"`
	Name       string            `json:"name,omitempty"`
	Region     string            `json:"region,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Attributes map[string]any    `json:"attributes,omitempty"`
}

// ResourceFilter selects resources from the registry's query surface.
type ResourceFilter struct {
	ConnectionID   string            `json:"connection_id,omitempty"`
	Provider       string            `json:"provider,omitempty"`
	Kind           ResourceKind      `json:"kind,omitempty"`
	Status         ResourceStatus    `json:"status,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	IncludeDeleted bool              `json:"include_deleted,omitempty"`
}

// Matches checks the filter against a resource and its tag set.
func (r *Resource) Matches(filter ResourceFilter, tags TagSet) bool {
	if !filter.IncludeDeleted && r.IsDeleted() {
		return false
	}
	if filter.ConnectionID != "" && r.ConnectionID != filter.ConnectionID {
		return false
	}
	if filter.Provider != "" && r.Provider != filter.Provider {
		return false
	}
	if filter.Kind != "" && r.Kind != filter.Kind {
		return false
	}
	if filter.Status != "" && r.Status != filter.Status {
		return false
	}
	for key, value := range filter.Tags {
		tag, ok := tags[key]
		if !ok || tag.Value != value {
			return false
		}
	}
	return true
}

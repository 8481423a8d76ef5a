// Package reconciler diffs freshly fetched provider inventory against
// the stored registry and applies create/update/tombstone changes as one
// atomic transaction per connection.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/telemetry"
	"github.com/finopskit/kosten/types"
)

// Engine builds reconciliation runs against the registry.
type Engine struct {
	store  *storage.Registry
	logger *telemetry.Logger
	now    func() time.Time
	newID  func() string
}

// NewEngine creates a reconciliation engine.
func NewEngine(store *storage.Registry) *Engine {
	return &Engine{
		store:  store,
		logger: telemetry.NewLogger("reconciler"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Run accumulates one sync's observations and applies them in a single
// transaction. Observations arrive page by page so connector fetches
// stay lazy; the pending change set is the only materialized state.
type Run struct {
	engine       *Engine
	connectionID string
	provider     string
	full         bool
	startedAt    time.Time
	// pending is keyed by native id so a retried page re-delivering the
	// same items folds into the existing change instead of duplicating.
	pending map[string]*types.Change
	order   []string
}

// Begin starts a run for one connection. full marks a full snapshot,
// which is the only mode allowed to detect deletions.
func (e *Engine) Begin(connectionID, provider string, full bool) *Run {
	return &Run{
		engine:       e,
		connectionID: connectionID,
		provider:     provider,
		full:         full,
		startedAt:    e.now().UTC(),
		pending:      make(map[string]*types.Change),
	}
}

// Observe merges one observed resource into the pending change set.
func (r *Run) Observe(raw types.RawResource) error {
	if raw.NativeID == "" {
		return fmt.Errorf("observed resource without native id (kind %s)", raw.Kind)
	}

	if change, seen := r.pending[raw.NativeID]; seen {
		// Same native id observed again in this run; fold in place.
		r.mergeInto(change, raw)
		return nil
	}

	existing, found, err := r.engine.store.LookupNative(r.connectionID, raw.NativeID)
	if err != nil {
		return fmt.Errorf("lookup %s/%s: %w", r.connectionID, raw.NativeID, err)
	}

	var change *types.Change
	if !found {
		change = r.create(raw)
	} else {
		change, err = r.update(existing, raw)
		if err != nil {
			return err
		}
	}
	r.pending[raw.NativeID] = change
	r.order = append(r.order, raw.NativeID)
	return nil
}

// create builds a new registry entry. The synthetic id is minted here
// and never changes afterwards; a native id reappearing after a
// tombstone lands in this path and gets a fresh id.
func (r *Run) create(raw types.RawResource) *types.Change {
	now := r.startedAt
	status := raw.Status
	if status == "" {
		status = types.StatusActive
	}
	return &types.Change{
		Kind: types.ChangeCreated,
		Resource: types.Resource{
			ID:            r.engine.newID(),
			ConnectionID:  r.connectionID,
			NativeID:      raw.NativeID,
			Provider:      r.provider,
			Region:        raw.Region,
			Name:          raw.Name,
			Kind:          raw.Kind,
			Status:        status,
			FirstSeenAt:   now,
			LastSeenAt:    now,
			LastSyncedAt:  now,
			RawAttributes: raw.Attributes,
		},
		Tags: types.ProviderTagSet(raw.Tags),
	}
}

// update merges an observation into an existing row: status, attributes
// and last-seen advance; provider tags are replaced wholesale while
// human tags survive; id and first-seen never move.
func (r *Run) update(existing *types.Resource, raw types.RawResource) (*types.Change, error) {
	existingTags, err := r.engine.store.TagsFor(existing.ID)
	if err != nil {
		return nil, fmt.Errorf("tags for %s: %w", existing.ID, err)
	}

	merged := *existing
	merged.Status = raw.Status
	if merged.Status == "" {
		merged.Status = types.StatusUnknown
	}
	merged.Kind = raw.Kind
	merged.RawAttributes = raw.Attributes
	if raw.Name != "" {
		merged.Name = raw.Name
	}
	if raw.Region != "" {
		merged.Region = raw.Region
	}
	merged.LastSeenAt = r.startedAt
	merged.LastSyncedAt = r.startedAt

	return &types.Change{
		Kind:     types.ChangeUpdated,
		Resource: merged,
		Tags:     types.MergeProviderTags(existingTags, raw.Tags),
	}, nil
}

func (r *Run) mergeInto(change *types.Change, raw types.RawResource) {
	if raw.Status != "" {
		change.Resource.Status = raw.Status
	}
	if raw.Attributes != nil {
		change.Resource.RawAttributes = raw.Attributes
	}
	if raw.Name != "" {
		change.Resource.Name = raw.Name
	}
	change.Tags = types.MergeProviderTags(change.Tags, raw.Tags)
}

// Apply finishes the run: on full snapshots it tombstones every live
// resource the run did not observe (delta syncs cannot prove absence),
// then commits the whole change set atomically. On failure the registry
// is untouched and the caller retries from the same watermark.
func (r *Run) Apply(ctx context.Context) (*types.ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cs := &types.ChangeSet{
		ConnectionID: r.connectionID,
		FullSnapshot: r.full,
	}
	for _, nativeID := range r.order {
		change := r.pending[nativeID]
		switch change.Kind {
		case types.ChangeCreated:
			cs.Created = append(cs.Created, *change)
		default:
			cs.Updated = append(cs.Updated, *change)
		}
	}

	if r.full {
		if err := r.appendTombstones(cs); err != nil {
			return nil, err
		}
	}

	if cs.Empty() {
		return cs, nil
	}

	rev, err := r.engine.store.ApplyChangeSet(cs)
	if err != nil {
		return nil, fmt.Errorf("apply reconciliation for %s: %w", r.connectionID, err)
	}

	r.engine.logger.WithContext(ctx).Info().
		Str("connection_id", r.connectionID).
		Bool("full_snapshot", r.full).
		Int("created", len(cs.Created)).
		Int("updated", len(cs.Updated)).
		Int("tombstoned", len(cs.Tombstoned)).
		Int64("revision", rev).
		Msg("reconciliation applied")

	return cs, nil
}

func (r *Run) appendTombstones(cs *types.ChangeSet) error {
	live, err := r.engine.store.LiveResources(r.connectionID)
	if err != nil {
		return fmt.Errorf("live resources for %s: %w", r.connectionID, err)
	}
	deletedAt := r.startedAt
	for _, res := range live {
		if _, observed := r.pending[res.NativeID]; observed {
			continue
		}
		dead := res
		dead.Status = types.StatusTerminated
		dead.DeletedAt = &deletedAt
		tags, err := r.engine.store.TagsFor(res.ID)
		if err != nil {
			return err
		}
		cs.Tombstoned = append(cs.Tombstoned, types.Change{
			Kind:     types.ChangeTombstoned,
			Resource: dead,
			Tags:     tags,
		})
	}
	return nil
}

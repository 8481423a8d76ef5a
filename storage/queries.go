package storage

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/finopskit/kosten/types"
)

// GetResource fetches one resource by synthetic id.
func (r *Registry) GetResource(id string) (*types.Resource, error) {
	var res types.Resource
	err := r.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketResources).Get([]byte(id))
		if value == nil {
			return fmt.Errorf("resource %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(value, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// LookupNative resolves the live resource for (connection, native id).
// Tombstoned rows never resolve.
func (r *Registry) LookupNative(connectionID, nativeID string) (*types.Resource, bool, error) {
	r.mu.RLock()
	entry, ok := r.index.Get(&indexEntry{ConnectionID: connectionID, NativeID: nativeID})
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	res, err := r.GetResource(entry.ResourceID)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// LiveResources returns all non-tombstoned resources for a connection.
// This is the set the reconciler tombstones against on full snapshots.
func (r *Registry) LiveResources(connectionID string) ([]types.Resource, error) {
	r.mu.RLock()
	var ids []string
	pivot := &indexEntry{ConnectionID: connectionID}
	r.index.AscendGreaterOrEqual(pivot, func(entry *indexEntry) bool {
		if entry.ConnectionID != connectionID {
			return false
		}
		ids = append(ids, entry.ResourceID)
		return true
	})
	r.mu.RUnlock()

	resources := make([]types.Resource, 0, len(ids))
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketResources)
		for _, id := range ids {
			value := bucket.Get([]byte(id))
			if value == nil {
				return fmt.Errorf("indexed resource %s: %w", id, ErrNotFound)
			}
			var res types.Resource
			if err := json.Unmarshal(value, &res); err != nil {
				return err
			}
			resources = append(resources, res)
		}
		return nil
	})
	return resources, err
}

// ListResources scans the registry with a filter. Tag filters are
// evaluated against the stored tag sets.
func (r *Registry) ListResources(filter types.ResourceFilter) ([]types.Resource, error) {
	var resources []types.Resource
	err := r.db.View(func(tx *bbolt.Tx) error {
		tagBucket := tx.Bucket(bucketTags)
		return tx.Bucket(bucketResources).ForEach(func(k, v []byte) error {
			var res types.Resource
			if err := json.Unmarshal(v, &res); err != nil {
				return err
			}
			var tags types.TagSet
			if value := tagBucket.Get(k); value != nil {
				if err := json.Unmarshal(value, &tags); err != nil {
					return err
				}
			}
			if res.Matches(filter, tags) {
				resources = append(resources, res)
			}
			return nil
		})
	})
	return resources, err
}

// TagsFor returns the stored tag set for a resource, nil when none.
func (r *Registry) TagsFor(resourceID string) (types.TagSet, error) {
	var tags types.TagSet
	err := r.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketTags).Get([]byte(resourceID))
		if value == nil {
			return nil
		}
		return json.Unmarshal(value, &tags)
	})
	return tags, err
}

// SetHumanTag assigns a business tag with human provenance. Human tags
// survive every reconciliation merge.
func (r *Registry) SetHumanTag(resourceID, key, value string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketResources).Get([]byte(resourceID)) == nil {
			return fmt.Errorf("resource %s: %w", resourceID, ErrNotFound)
		}
		tags := types.TagSet{}
		if stored := tx.Bucket(bucketTags).Get([]byte(resourceID)); stored != nil {
			if err := json.Unmarshal(stored, &tags); err != nil {
				return err
			}
		}
		tags[key] = types.Tag{Key: key, Value: value, Provenance: types.ProvenanceHuman}
		return putTags(tx, resourceID, tags)
	})
}

// DeleteHumanTag removes a human-assigned tag. Provider tags are owned
// by reconciliation and cannot be removed here.
func (r *Registry) DeleteHumanTag(resourceID, key string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		stored := tx.Bucket(bucketTags).Get([]byte(resourceID))
		if stored == nil {
			return nil
		}
		tags := types.TagSet{}
		if err := json.Unmarshal(stored, &tags); err != nil {
			return err
		}
		tag, ok := tags[key]
		if !ok || tag.Provenance != types.ProvenanceHuman {
			return nil
		}
		delete(tags, key)
		return putTags(tx, resourceID, tags)
	})
}

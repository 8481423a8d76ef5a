package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/finopskit/kosten/types"
)

// ChangeRecord is one journaled change, kept so external consumers can
// follow registry changes by revision.
type ChangeRecord struct {
	Revision     int64            `json:"revision"`
	ConnectionID string           `json:"connection_id"`
	AppliedAt    time.Time        `json:"applied_at"`
	Kind         types.ChangeKind `json:"kind"`
	ResourceID   string           `json:"resource_id"`
	NativeID     string           `json:"native_id"`
}

// ApplyChangeSet applies one reconciliation result in a single bbolt
// transaction, so a concurrent reader never observes a half-merged
// registry. The in-memory index is updated only after the transaction
// commits. Returns the new registry revision.
func (r *Registry) ApplyChangeSet(cs *types.ChangeSet) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rev := r.currentRev + 1
	appliedAt := time.Now().UTC()

	err := r.db.Update(func(tx *bbolt.Tx) error {
		for _, change := range cs.Created {
			if err := putResource(tx, change, rev, cs.ConnectionID, appliedAt, true); err != nil {
				return err
			}
		}
		for _, change := range cs.Updated {
			if err := putResource(tx, change, rev, cs.ConnectionID, appliedAt, false); err != nil {
				return err
			}
		}
		for _, change := range cs.Tombstoned {
			if err := tombstoneResource(tx, change, rev, cs.ConnectionID, appliedAt); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keyCurrentRevision, int64ToBytes(rev))
	})
	if err != nil {
		return 0, fmt.Errorf("apply change set: %w", err)
	}

	r.currentRev = rev
	for _, change := range cs.Created {
		r.index.ReplaceOrInsert(&indexEntry{
			ConnectionID: cs.ConnectionID,
			NativeID:     change.Resource.NativeID,
			ResourceID:   change.Resource.ID,
		})
	}
	for _, change := range cs.Tombstoned {
		entry := &indexEntry{ConnectionID: cs.ConnectionID, NativeID: change.Resource.NativeID}
		if existing, ok := r.index.Get(entry); ok && existing.ResourceID == change.Resource.ID {
			r.index.Delete(entry)
		}
	}
	return rev, nil
}

func putResource(tx *bbolt.Tx, change types.Change, rev int64, connectionID string, appliedAt time.Time, created bool) error {
	res := change.Resource
	value, err := json.Marshal(&res)
	if err != nil {
		return fmt.Errorf("marshal resource %s: %w", res.ID, err)
	}
	if err := tx.Bucket(bucketResources).Put([]byte(res.ID), value); err != nil {
		return err
	}
	if created {
		if err := tx.Bucket(bucketNativeIndex).Put(nativeKey(connectionID, res.NativeID), []byte(res.ID)); err != nil {
			return err
		}
	}
	if err := putTags(tx, res.ID, change.Tags); err != nil {
		return err
	}
	kind := types.ChangeUpdated
	if created {
		kind = types.ChangeCreated
	}
	return journalChange(tx, rev, connectionID, appliedAt, kind, res)
}

func tombstoneResource(tx *bbolt.Tx, change types.Change, rev int64, connectionID string, appliedAt time.Time) error {
	res := change.Resource
	value, err := json.Marshal(&res)
	if err != nil {
		return fmt.Errorf("marshal tombstone %s: %w", res.ID, err)
	}
	if err := tx.Bucket(bucketResources).Put([]byte(res.ID), value); err != nil {
		return err
	}
	// Drop the live mapping; a reused native id gets a fresh row.
	key := nativeKey(connectionID, res.NativeID)
	current := tx.Bucket(bucketNativeIndex).Get(key)
	if string(current) == res.ID {
		if err := tx.Bucket(bucketNativeIndex).Delete(key); err != nil {
			return err
		}
	}
	return journalChange(tx, rev, connectionID, appliedAt, types.ChangeTombstoned, res)
}

func putTags(tx *bbolt.Tx, resourceID string, tags types.TagSet) error {
	bucket := tx.Bucket(bucketTags)
	if len(tags) == 0 {
		return bucket.Delete([]byte(resourceID))
	}
	value, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags for %s: %w", resourceID, err)
	}
	return bucket.Put([]byte(resourceID), value)
}

func journalChange(tx *bbolt.Tx, rev int64, connectionID string, appliedAt time.Time, kind types.ChangeKind, res types.Resource) error {
	record := ChangeRecord{
		Revision:     rev,
		ConnectionID: connectionID,
		AppliedAt:    appliedAt,
		Kind:         kind,
		ResourceID:   res.ID,
		NativeID:     res.NativeID,
	}
	value, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	key := make([]byte, 0, 8+1+len(res.ID))
	key = append(key, int64ToBytes(rev)...)
	key = append(key, 0)
	key = append(key, res.ID...)
	return tx.Bucket(bucketChanges).Put(key, value)
}

// ChangesSince returns journaled changes with revision greater than rev,
// in revision order.
func (r *Registry) ChangesSince(rev int64) ([]ChangeRecord, error) {
	var records []ChangeRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketChanges).Cursor()
		for k, v := c.Seek(int64ToBytes(rev + 1)); k != nil; k, v = c.Next() {
			var record ChangeRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("corrupt change record: %w", err)
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// CompactChanges removes journal entries older than keepRevisions back
// from the current revision. Returns the number of deleted entries.
func (r *Registry) CompactChanges(keepRevisions int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.currentRev - keepRevisions
	if cutoff <= 0 {
		return 0, nil
	}

	deleted := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketChanges)
		c := bucket.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if int64(binaryRev(k)) >= cutoff {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, key := range toDelete {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		deleted = len(toDelete)
		return nil
	})
	return deleted, err
}

func binaryRev(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	var rev uint64
	for _, b := range key[:8] {
		rev = rev<<8 | uint64(b)
	}
	return rev
}

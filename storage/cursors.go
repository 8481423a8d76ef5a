package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/finopskit/kosten/types"
)

// GetCursor fetches the sync cursor for a connection.
func (r *Registry) GetCursor(connectionID string) (*types.SyncCursor, bool, error) {
	var cursor types.SyncCursor
	found := false
	err := r.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketCursors).Get([]byte(connectionID))
		if value == nil {
			return nil
		}
		found = true
		return json.Unmarshal(value, &cursor)
	})
	if err != nil {
		return nil, false, fmt.Errorf("get cursor %s: %w", connectionID, err)
	}
	if !found {
		return nil, false, nil
	}
	return &cursor, true, nil
}

// PutCursor stores the sync cursor for a connection.
func (r *Registry) PutCursor(cursor types.SyncCursor) error {
	cursor.UpdatedAt = time.Now().UTC()
	value, err := json.Marshal(&cursor)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Put([]byte(cursor.ConnectionID), value)
	})
}

// DeleteCursor removes the cursor, forcing the next run to full resync.
func (r *Registry) DeleteCursor(connectionID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Delete([]byte(connectionID))
	})
}

// GetHealth fetches the recorded health for a connection.
func (r *Registry) GetHealth(connectionID string) (*types.ConnectionHealth, bool, error) {
	var health types.ConnectionHealth
	found := false
	err := r.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketHealth).Get([]byte(connectionID))
		if value == nil {
			return nil
		}
		found = true
		return json.Unmarshal(value, &health)
	})
	if err != nil || !found {
		return nil, false, err
	}
	return &health, true, nil
}

// PutHealth stores connection health for the operator surface.
func (r *Registry) PutHealth(health types.ConnectionHealth) error {
	value, err := json.Marshal(&health)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHealth).Put([]byte(health.ConnectionID), value)
	})
}

// ListHealth returns health records for all known connections.
func (r *Registry) ListHealth() ([]types.ConnectionHealth, error) {
	var out []types.ConnectionHealth
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHealth).ForEach(func(_, v []byte) error {
			var health types.ConnectionHealth
			if err := json.Unmarshal(v, &health); err != nil {
				return err
			}
			out = append(out, health)
			return nil
		})
	})
	return out, err
}

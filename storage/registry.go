// Package storage is the resource registry: the single shared mutable
// state of the sync core. All mutation goes through per-connection
// change-set transactions; everything else is a read-only query surface.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/finopskit/kosten/types"
)

// Bucket names in bbolt.
var (
	bucketResources   = []byte("resources")
	bucketNativeIndex = []byte("native_index")
	bucketTags        = []byte("tags")
	bucketCursors     = []byte("cursors")
	bucketHealth      = []byte("health")
	bucketSamples     = []byte("samples")
	bucketRollups     = []byte("rollups")
	bucketChanges     = []byte("changes")
	bucketAllocations = []byte("allocations")
	bucketMeta        = []byte("meta")
)

var keyCurrentRevision = []byte("current_revision")

// Sentinel errors for the query surface.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateSample = errors.New("duplicate sample timestamp")
)

// indexEntry maps (connection, native id) to the live synthetic id.
// Tombstoned rows are dropped from the index so a reused native id
// resolves to nothing until a new row is created.
type indexEntry struct {
	ConnectionID string
	NativeID     string
	ResourceID   string
}

func indexLess(a, b *indexEntry) bool {
	if a.ConnectionID != b.ConnectionID {
		return a.ConnectionID < b.ConnectionID
	}
	return a.NativeID < b.NativeID
}

// Registry is the bbolt-backed resource registry with an in-memory
// btree index over live (connection, native id) pairs.
type Registry struct {
	mu         sync.RWMutex
	db         *bbolt.DB
	index      *btree.BTreeG[*indexEntry]
	currentRev int64
}

// Open opens or creates the registry database in dir.
func Open(dir string) (*Registry, error) {
	db, err := bbolt.Open(filepath.Join(dir, "kosten.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			bucketResources, bucketNativeIndex, bucketTags, bucketCursors,
			bucketHealth, bucketSamples, bucketRollups, bucketChanges,
			bucketAllocations, bucketMeta,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	r := &Registry{
		db:    db,
		index: btree.NewG(32, indexLess),
	}
	if err := r.loadRevision(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := r.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// CurrentRevision returns the registry's current revision number. The
// revision advances once per applied change set.
func (r *Registry) CurrentRevision() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentRev
}

func (r *Registry) loadRevision() error {
	return r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrentRevision)
		if data != nil {
			r.currentRev = int64(binary.BigEndian.Uint64(data))
		}
		return nil
	})
}

// rebuildIndex scans the resources bucket and indexes live rows.
func (r *Registry) rebuildIndex() error {
	return r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(_, v []byte) error {
			var res types.Resource
			if err := json.Unmarshal(v, &res); err != nil {
				return fmt.Errorf("corrupt resource row: %w", err)
			}
			if res.IsDeleted() {
				return nil
			}
			r.index.ReplaceOrInsert(&indexEntry{
				ConnectionID: res.ConnectionID,
				NativeID:     res.NativeID,
				ResourceID:   res.ID,
			})
			return nil
		})
	})
}

func int64ToBytes(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

// nativeKey builds the native_index key. Connection ids and native ids
// never contain NUL, so a zero byte is a safe separator.
func nativeKey(connectionID, nativeID string) []byte {
	key := make([]byte, 0, len(connectionID)+len(nativeID)+1)
	key = append(key, connectionID...)
	key = append(key, 0)
	key = append(key, nativeID...)
	return key
}

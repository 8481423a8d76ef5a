package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/finopskit/kosten/types"
)

// sampleKey encodes (resource, metric, timestamp) so bbolt's cursor
// iterates samples of one series in timestamp order.
func sampleKey(resourceID, metricName string, ts time.Time) []byte {
	prefix := seriesPrefix(resourceID, metricName)
	return append(prefix, int64ToBytes(ts.UnixNano())...)
}

func seriesPrefix(resourceID, metricName string) []byte {
	key := make([]byte, 0, len(resourceID)+len(metricName)+2+8)
	key = append(key, resourceID...)
	key = append(key, 0)
	key = append(key, metricName...)
	key = append(key, 0)
	return key
}

// AppendSample appends one point to the metric ledger. A timestamp
// already present for the same series is rejected with
// ErrDuplicateSample — the ledger is append-only, never overwritten.
func (r *Registry) AppendSample(sample types.MetricSample) error {
	value, err := json.Marshal(&sample)
	if err != nil {
		return err
	}
	key := sampleKey(sample.ResourceID, sample.MetricName, sample.Timestamp)
	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSamples)
		if bucket.Get(key) != nil {
			return fmt.Errorf("%s/%s@%s: %w", sample.ResourceID, sample.MetricName,
				sample.Timestamp.Format(time.RFC3339), ErrDuplicateSample)
		}
		return bucket.Put(key, value)
	})
}

// SamplesFor returns raw samples of one series in [from, to), in
// timestamp order.
func (r *Registry) SamplesFor(resourceID, metricName string, from, to time.Time) ([]types.MetricSample, error) {
	prefix := seriesPrefix(resourceID, metricName)
	start := sampleKey(resourceID, metricName, from)
	end := sampleKey(resourceID, metricName, to)

	var samples []types.MetricSample
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSamples).Cursor()
		for k, v := c.Seek(start); k != nil && lessThan(k, end, prefix); k, v = c.Next() {
			var sample types.MetricSample
			if err := json.Unmarshal(v, &sample); err != nil {
				return err
			}
			samples = append(samples, sample)
		}
		return nil
	})
	return samples, err
}

func lessThan(key, end, prefix []byte) bool {
	if len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
		return false
	}
	return string(key) < string(end)
}

// CompactSamples folds raw samples older than cutoff into hourly rollups
// and deletes them, in one transaction. Compaction is lossy by design:
// only min/max/sum/count survive per hour. Returns the number of raw
// samples compacted.
func (r *Registry) CompactSamples(cutoff time.Time) (int, error) {
	compacted := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		samples := tx.Bucket(bucketSamples)
		rollups := tx.Bucket(bucketRollups)

		pending := make(map[string]*types.MetricRollup)
		var toDelete [][]byte

		c := samples.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sample types.MetricSample
			if err := json.Unmarshal(v, &sample); err != nil {
				return err
			}
			if !sample.Timestamp.Before(cutoff) {
				continue
			}

			hour := sample.Timestamp.UTC().Truncate(time.Hour)
			rollupKey := string(sampleKey(sample.ResourceID, sample.MetricName, hour))
			rollup := pending[rollupKey]
			if rollup == nil {
				rollup = loadRollup(rollups, []byte(rollupKey), sample, hour)
				pending[rollupKey] = rollup
			}
			foldSample(rollup, sample.Value)
			toDelete = append(toDelete, append([]byte(nil), k...))
		}

		for key, rollup := range pending {
			value, err := json.Marshal(rollup)
			if err != nil {
				return err
			}
			if err := rollups.Put([]byte(key), value); err != nil {
				return err
			}
		}
		for _, key := range toDelete {
			if err := samples.Delete(key); err != nil {
				return err
			}
		}
		compacted = len(toDelete)
		return nil
	})
	return compacted, err
}

func loadRollup(bucket *bbolt.Bucket, key []byte, sample types.MetricSample, hour time.Time) *types.MetricRollup {
	if stored := bucket.Get(key); stored != nil {
		var rollup types.MetricRollup
		if err := json.Unmarshal(stored, &rollup); err == nil {
			return &rollup
		}
	}
	return &types.MetricRollup{
		ResourceID: sample.ResourceID,
		MetricName: sample.MetricName,
		Hour:       hour,
	}
}

func foldSample(rollup *types.MetricRollup, value float64) {
	if rollup.Count == 0 || value < rollup.Min {
		rollup.Min = value
	}
	if rollup.Count == 0 || value > rollup.Max {
		rollup.Max = value
	}
	rollup.Sum += value
	rollup.Count++
}

// RollupsFor returns hourly rollups of one series in [from, to).
func (r *Registry) RollupsFor(resourceID, metricName string, from, to time.Time) ([]types.MetricRollup, error) {
	prefix := seriesPrefix(resourceID, metricName)
	start := sampleKey(resourceID, metricName, from.Truncate(time.Hour))
	end := sampleKey(resourceID, metricName, to)

	var rollups []types.MetricRollup
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRollups).Cursor()
		for k, v := c.Seek(start); k != nil && lessThan(k, end, prefix); k, v = c.Next() {
			var rollup types.MetricRollup
			if err := json.Unmarshal(v, &rollup); err != nil {
				return err
			}
			rollups = append(rollups, rollup)
		}
		return nil
	})
	return rollups, err
}

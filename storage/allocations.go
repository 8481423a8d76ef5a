package storage

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

// Allocation is the current business-unit assignment of one resource,
// materialized from rule evaluation. Historical billing-period
// allocations live with the presentation layer; the registry only keeps
// the current assignment and the rule version that produced it.
type Allocation struct {
	ResourceID   string    `json:"resource_id"`
	BusinessUnit string    `json:"business_unit"`
	RuleName     string    `json:"rule_name,omitempty"`
	RuleVersion  int       `json:"rule_version"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// PutAllocation stores the current assignment for a resource.
func (r *Registry) PutAllocation(alloc Allocation) error {
	value, err := json.Marshal(&alloc)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAllocations).Put([]byte(alloc.ResourceID), value)
	})
}

// GetAllocation fetches the current assignment, false when the resource
// has never been evaluated.
func (r *Registry) GetAllocation(resourceID string) (*Allocation, bool, error) {
	var alloc Allocation
	found := false
	err := r.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketAllocations).Get([]byte(resourceID))
		if value == nil {
			return nil
		}
		found = true
		return json.Unmarshal(value, &alloc)
	})
	if err != nil || !found {
		return nil, false, err
	}
	return &alloc, true, nil
}

// ListAllocations returns every current assignment.
func (r *Registry) ListAllocations() ([]Allocation, error) {
	var out []Allocation
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAllocations).ForEach(func(_, v []byte) error {
			var alloc Allocation
			if err := json.Unmarshal(v, &alloc); err != nil {
				return err
			}
			out = append(out, alloc)
			return nil
		})
	})
	return out, err
}

package types

// ChangeKind categorizes one reconciled change.
type ChangeKind string

const (
	ChangeCreated    ChangeKind = "created"
	ChangeUpdated    ChangeKind = "updated"
	ChangeTombstoned ChangeKind = "tombstoned"
)

// Change pairs a reconciled resource with its post-merge tag set.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	Resource Resource   `json:"resource"`
	Tags     TagSet     `json:"tags,omitempty"`
}

// ChangeSet is the output of one reconciliation run for one connection.
// It is applied to the registry as a single transaction.
type ChangeSet struct {
	ConnectionID string   `json:"connection_id"`
	FullSnapshot bool     `json:"full_snapshot"`
	Created      []Change `json:"created,omitempty"`
	Updated      []Change `json:"updated,omitempty"`
	Tombstoned   []Change `json:"tombstoned,omitempty"`
}

// Empty reports whether the run changed nothing.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Created) == 0 && len(cs.Updated) == 0 && len(cs.Tombstoned) == 0
}

// Size returns the total number of changes.
func (cs *ChangeSet) Size() int {
	return len(cs.Created) + len(cs.Updated) + len(cs.Tombstoned)
}

// Touched returns every changed resource id, created and updated first.
func (cs *ChangeSet) Touched() []string {
	ids := make([]string, 0, cs.Size())
	for _, c := range cs.Created {
		ids = append(ids, c.Resource.ID)
	}
	for _, c := range cs.Updated {
		ids = append(ids, c.Resource.ID)
	}
	for _, c := range cs.Tombstoned {
		ids = append(ids, c.Resource.ID)
	}
	return ids
}

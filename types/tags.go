package types

// TagProvenance records who assigned a tag. Reconciliation replaces
// provider tags wholesale on every sync but never touches human tags.
type TagProvenance string

const (
	ProvenanceProvider TagProvenance = "provider"
	ProvenanceHuman    TagProvenance = "human"
)

// Tag is one key/value on a resource, with provenance.
type Tag struct {
	Key        string        `json:"key"`
	Value      string        `json:"value"`
	Provenance TagProvenance `json:"provenance"`
}

// TagSet maps tag key to tag. Keys are unique per resource.
type TagSet map[string]Tag

// ProviderTagSet builds a TagSet from a provider-native tag map.
func ProviderTagSet(tags map[string]string) TagSet {
	if len(tags) == 0 {
		return nil
	}
	set := make(TagSet, len(tags))
	for k, v := range tags {
		set[k] = Tag{Key: k, Value: v, Provenance: ProvenanceProvider}
	}
	return set
}

// MergeProviderTags returns the tag set after a sync observed the given
// provider tags: provider-provenance entries are replaced wholesale,
// human-provenance entries survive untouched, including when the provider
// stops reporting tags entirely.
func MergeProviderTags(existing TagSet, observed map[string]string) TagSet {
	merged := make(TagSet, len(existing)+len(observed))
	for k, tag := range existing {
		if tag.Provenance == ProvenanceHuman {
			merged[k] = tag
		}
	}
	for k, v := range observed {
		if _, human := merged[k]; human {
			// Human assignment wins over provider data for the same key.
			continue
		}
		merged[k] = Tag{Key: k, Value: v, Provenance: ProvenanceProvider}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// Values flattens the set to a plain map for rule evaluation.
func (s TagSet) Values() map[string]string {
	out := make(map[string]string, len(s))
	for k, tag := range s {
		out[k] = tag.Value
	}
	return out
}

// Equal reports whether two tag sets carry identical keys, values and
// provenance.
func (s TagSet) Equal(other TagSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k, tag := range s {
		if other[k] != tag {
			return false
		}
	}
	return true
}

package revision

import "slices"

// ChangeSet describes how a merge altered a manifest.
type ChangeSet struct {
	Added     []string `json:"added"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`

	// Superseded maps each updated logical path to the physical path it replaced.
	Superseded map[string]string `json:"superseded,omitempty"`
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:      []string{},
		Updated:    []string{},
		Unchanged:  []string{},
		Superseded: map[string]string{},
	}
}

// IsEmpty returns true when the merge added or updated nothing.
func (cs *ChangeSet) IsEmpty() bool {
	if cs == nil {
		return true
	}
	return len(cs.Added) == 0 && len(cs.Updated) == 0
}

// TotalChanges returns the number of added and updated entries.
func (cs *ChangeSet) TotalChanges() int {
	if cs == nil {
		return 0
	}
	return len(cs.Added) + len(cs.Updated)
}

// sort sorts all slices for deterministic output.
func (cs *ChangeSet) sort() {
	if cs == nil {
		return
	}
	slices.Sort(cs.Added)
	slices.Sort(cs.Updated)
	slices.Sort(cs.Unchanged)
}

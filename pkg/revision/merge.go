package revision

import "github.com/albertocavalcante/assetrev/pkg/util"

// Merge combines the previous manifest with mappings produced by the
// current build. Fresh values replace old ones; keys only present in old
// are retained so partial builds never drop other asset classes.
// Neither input is modified.
func Merge(old, fresh *Manifest) (*Manifest, *ChangeSet) {
	merged := old.Clone()
	cs := NewChangeSet()

	for _, logical := range fresh.Keys() {
		physical, _ := fresh.Get(logical)
		prev, existed := old.Get(logical)
		switch {
		case !existed:
			cs.Added = append(cs.Added, logical)
		case prev != physical:
			cs.Updated = append(cs.Updated, logical)
			cs.Superseded[logical] = prev
		default:
			cs.Unchanged = append(cs.Unchanged, logical)
		}
		merged.Set(logical, physical)
	}

	cs.sort()
	return merged, cs
}

// StaleFiles returns physical paths superseded between old and merged that
// no key in merged still references. The result is sorted and deduplicated.
func StaleFiles(old, merged *Manifest) []string {
	current := merged.Values()
	var stale []string

	for _, logical := range old.Keys() {
		prev, _ := old.Get(logical)
		now, ok := merged.Get(logical)
		if !ok || now == prev {
			// Missing keys are retired explicitly, never by a build.
			continue
		}
		if _, inUse := current[prev]; inUse {
			continue
		}
		stale = append(stale, prev)
	}

	return util.SortedUnique(stale)
}

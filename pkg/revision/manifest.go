package revision

import (
	"maps"

	"github.com/albertocavalcante/assetrev/pkg/util"
)

// Manifest maps logical asset paths to their current revisioned paths.
// Both sides are slash-separated and relative to the output root.
type Manifest struct {
	entries map[string]string
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{entries: make(map[string]string)}
}

// ManifestFromMap copies m into a new manifest.
func ManifestFromMap(m map[string]string) *Manifest {
	out := NewManifest()
	for k, v := range m {
		out.entries[k] = v
	}
	return out
}

// Get returns the physical path for a logical asset.
func (m *Manifest) Get(logical string) (string, bool) {
	if m == nil || m.entries == nil {
		return "", false
	}
	v, ok := m.entries[logical]
	return v, ok
}

// Set adds or replaces an entry.
func (m *Manifest) Set(logical, physical string) {
	if m == nil {
		return
	}
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.entries[logical] = physical
}

// Delete removes an entry, returning the physical path it held.
func (m *Manifest) Delete(logical string) (string, bool) {
	if m == nil || m.entries == nil {
		return "", false
	}
	v, ok := m.entries[logical]
	delete(m.entries, logical)
	return v, ok
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Keys returns the logical paths in sorted order.
func (m *Manifest) Keys() []string {
	if m == nil || len(m.entries) == 0 {
		return nil
	}
	return util.SortedKeys(m.entries)
}

// Values returns the set of physical paths currently referenced.
func (m *Manifest) Values() map[string]struct{} {
	out := make(map[string]struct{}, m.Len())
	if m == nil {
		return out
	}
	for _, v := range m.entries {
		out[v] = struct{}{}
	}
	return out
}

// Map returns a copy of the entries.
func (m *Manifest) Map() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m.entries)
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	return &Manifest{entries: m.Map()}
}

// Equal reports whether both manifests hold identical mappings.
func (m *Manifest) Equal(other *Manifest) bool {
	if m.Len() != other.Len() {
		return false
	}
	for k, v := range m.Map() {
		if ov, ok := other.Get(k); !ok || ov != v {
			return false
		}
	}
	return true
}

package resolve

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// statter is implemented by stores that can report file identity, letting
// the strategy skip reloads when the manifest has not been replaced.
type statter interface {
	Stat() (fs.FileInfo, error)
}

// ManifestStrategy resolves through the persisted manifest.
type ManifestStrategy struct {
	store revision.Store

	mu       sync.Mutex
	cached   *revision.Manifest
	info     fs.FileInfo
	hasCache bool
}

// NewManifestStrategy creates a strategy reading store.
func NewManifestStrategy(store revision.Store) *ManifestStrategy {
	return &ManifestStrategy{store: store}
}

func (s *ManifestStrategy) Name() string { return "manifest" }

// Resolve returns the revisioned path for logical. A missing manifest is a
// miss; a corrupt one is an error.
func (s *ManifestStrategy) Resolve(_ context.Context, logical string) (string, bool, error) {
	m, err := s.manifest()
	if err != nil {
		return "", false, err
	}
	if m == nil {
		return "", false, nil
	}
	physical, ok := m.Get(logical)
	return physical, ok, nil
}

// Manifest returns the current manifest, reloading it when the file changed.
// It returns nil when no manifest exists.
func (s *ManifestStrategy) Manifest() (*revision.Manifest, error) {
	return s.manifest()
}

func (s *ManifestStrategy) manifest() (*revision.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.store.(statter)
	if !ok {
		return s.load()
	}

	info, err := st.Stat()
	if errors.Is(err, fs.ErrNotExist) {
		s.cached, s.info, s.hasCache = nil, nil, false
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.hasCache && unchanged(s.info, info) {
		return s.cached, nil
	}

	m, err := s.load()
	if err != nil {
		s.cached, s.info, s.hasCache = nil, nil, false
		return nil, err
	}
	s.cached, s.info, s.hasCache = m, info, true
	return m, nil
}

// unchanged reports whether cur is the same file, at the same size and
// modification time, as prev. Coarse mtimes make the identity check the
// one that catches a rebuild within the same tick.
func unchanged(prev, cur fs.FileInfo) bool {
	return os.SameFile(prev, cur) &&
		cur.ModTime().Equal(prev.ModTime()) &&
		cur.Size() == prev.Size()
}

func (s *ManifestStrategy) load() (*revision.Manifest, error) {
	if !s.store.Exists() {
		return nil, nil
	}
	return s.store.Load()
}

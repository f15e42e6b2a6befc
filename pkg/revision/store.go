package revision

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultManifestPath is where the serving layer expects the manifest.
const DefaultManifestPath = "public/assets/build/versions.json"

// Store defines manifest persistence.
type Store interface {
	Load() (*Manifest, error)
	Save(m *Manifest) error
	Exists() bool
	Remove() error
	Path() string
}

// FileStore persists a manifest as a single file.
type FileStore struct {
	path  string
	codec Codec
}

// NewFileStore creates a store at path, choosing the codec from its extension.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, codec: CodecFor(path)}
}

// NewFileStoreWithCodec creates a store with an explicit codec.
func NewFileStoreWithCodec(path string, codec Codec) *FileStore {
	if codec == nil {
		codec = CodecFor(path)
	}
	return &FileStore{path: path, codec: codec}
}

// OpenFileStore creates a store at path. A non-empty format ("json" or
// "yaml") overrides detection by extension.
func OpenFileStore(path, format string) (*FileStore, error) {
	if format == "" {
		return NewFileStore(path), nil
	}
	codec, err := CodecByName(format)
	if err != nil {
		return nil, err
	}
	return NewFileStoreWithCodec(path, codec), nil
}

// Path returns the manifest file path.
func (s *FileStore) Path() string { return s.path }

// Codec returns the serialization in use.
func (s *FileStore) Codec() Codec { return s.codec }

// Load reads the manifest. A missing file yields an empty manifest; a file
// that cannot be parsed yields a *ManifestCorruptError.
func (s *FileStore) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := s.codec.Decode(data)
	if err != nil {
		return nil, &ManifestCorruptError{Path: s.path, Err: err}
	}
	return m, nil
}

// Save writes the manifest atomically: readers see either the previous
// file or the complete new one.
func (s *FileStore) Save(m *Manifest) error {
	if m == nil {
		return fmt.Errorf("cannot save nil manifest")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := s.codec.Encode(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place. The temp file is removed on any failure.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Temp file lives next to the target so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Exists returns true if the manifest file exists.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Stat describes the manifest file, used by readers to detect that a build
// replaced it. Save always renames a new file into place, so file identity
// changes even when size and modification time do not.
func (s *FileStore) Stat() (fs.FileInfo, error) {
	return os.Stat(s.path)
}

// Remove deletes the manifest file. A missing file is not an error.
func (s *FileStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

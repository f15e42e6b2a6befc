package revision

import "fmt"

// ReadError is returned when an asset's bytes cannot be read.
// It is fatal to that asset only.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read asset %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is returned when a revisioned file cannot be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write revisioned file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ManifestCorruptError is returned when a manifest file exists but cannot be parsed.
type ManifestCorruptError struct {
	Path string
	Err  error
}

func (e *ManifestCorruptError) Error() string {
	return fmt.Sprintf("manifest %s is corrupt: %v", e.Path, e.Err)
}

func (e *ManifestCorruptError) Unwrap() error { return e.Err }

// DeleteError is returned when a stale revisioned file cannot be removed.
// Callers log it and carry on.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete stale file %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

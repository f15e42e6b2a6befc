package build

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// ErrAssetsFailed is returned by a strict build when any asset failed.
var ErrAssetsFailed = errors.New("one or more assets failed")

// AssetResult describes one processed asset.
type AssetResult struct {
	Class       string `json:"class"`
	Logical     string `json:"logical"`
	Physical    string `json:"physical,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Rewrites    int    `json:"rewrites,omitempty"`
	// Written is false when an identical revisioned file already existed.
	Written bool  `json:"written"`
	Err     error `json:"-"`
}

// Result is the outcome of a build.
type Result struct {
	Manifest     *revision.Manifest
	Changes      *revision.ChangeSet
	Assets       []AssetResult
	Failed       []error
	Stale        []string
	Deleted      []string
	Originals    []string
	DeleteErrors []error
	// Saved is false when the manifest did not change.
	Saved bool
	// Reset is true when a corrupt manifest was discarded.
	Reset    bool
	Duration time.Duration
}

// Succeeded returns the assets that were revisioned.
func (r *Result) Succeeded() []AssetResult {
	var out []AssetResult
	for _, a := range r.Assets {
		if a.Err == nil {
			out = append(out, a)
		}
	}
	return out
}

type resultJSON struct {
	Manifest     map[string]string   `json:"manifest"`
	Changes      *revision.ChangeSet `json:"changes"`
	Assets       []AssetResult       `json:"assets"`
	Failed       []string            `json:"failed,omitempty"`
	Stale        []string            `json:"stale,omitempty"`
	Deleted      []string            `json:"deleted,omitempty"`
	Originals    []string            `json:"originals_removed,omitempty"`
	DeleteErrors []string            `json:"delete_errors,omitempty"`
	Saved        bool                `json:"saved"`
	Reset        bool                `json:"reset,omitempty"`
	DurationMS   int64               `json:"duration_ms"`
}

// MarshalJSON renders errors as strings.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Manifest:     r.Manifest.Map(),
		Changes:      r.Changes,
		Assets:       r.Assets,
		Failed:       errorStrings(r.Failed),
		Stale:        r.Stale,
		Deleted:      r.Deleted,
		Originals:    r.Originals,
		DeleteErrors: errorStrings(r.DeleteErrors),
		Saved:        r.Saved,
		Reset:        r.Reset,
		DurationMS:   r.Duration.Milliseconds(),
	})
}

// StatusReport is the outcome of a dry run.
type StatusReport struct {
	Changes *revision.ChangeSet `json:"changes"`
	Stale   []string            `json:"stale"`
	Failed  []string            `json:"failed,omitempty"`
}

// RetireResult is the outcome of Retire.
type RetireResult struct {
	Retired      []string `json:"retired"`
	Missing      []string `json:"missing,omitempty"`
	Deleted      []string `json:"deleted,omitempty"`
	DeleteErrors []error  `json:"-"`
}

// CleanResult is the outcome of Clean.
type CleanResult struct {
	Deleted         []string `json:"deleted"`
	ManifestRemoved bool     `json:"manifest_removed"`
	DeleteErrors    []error  `json:"-"`
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

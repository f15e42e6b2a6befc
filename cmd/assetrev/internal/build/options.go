// Package build runs the revisioning pipeline: scan finished assets,
// rewrite references, fingerprint, write revisioned copies, merge the
// manifest, prune superseded files and remove unrevisioned originals.
package build

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/assetrev/pkg/config"
	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// CorruptPolicy decides what a build does with an unparseable manifest.
type CorruptPolicy string

const (
	// CorruptAbort fails the build and touches nothing.
	CorruptAbort CorruptPolicy = "abort"
	// CorruptReset warns and merges against an empty manifest.
	CorruptReset CorruptPolicy = "reset"
)

// ParseCorruptPolicy parses a policy name. Empty means abort.
func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	switch CorruptPolicy(s) {
	case "", CorruptAbort:
		return CorruptAbort, nil
	case CorruptReset:
		return CorruptReset, nil
	}
	return "", fmt.Errorf("unknown corrupt manifest policy %q (want abort or reset)", s)
}

// AssetClass is a named group of assets matched by doublestar globs
// relative to the output root.
type AssetClass struct {
	Name     string
	Patterns []string
	Rewrite  bool
}

// Options is the immutable input of a Builder.
type Options struct {
	// Root is the output root; logical paths are relative to it.
	Root string

	// Store persists the manifest.
	Store revision.Store

	Fingerprinter *revision.Fingerprinter
	Style         revision.NameStyle

	// Classes are processed in order; rewrite classes after the others.
	Classes []AssetClass

	KeepOriginal bool
	Prune        bool
	Strict       bool
	OnCorrupt    CorruptPolicy

	// Parallel processes non-rewrite classes concurrently, at most
	// Workers at a time.
	Parallel bool
	Workers  int

	// Prefix is the URL prefix templates put in front of logical paths.
	// Absolute references starting with it are rewritten.
	Prefix string
}

// OptionsFromConfig derives Options from a config whose paths are already
// anchored (see config.Config.WithBase).
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	fp, err := revision.NewFingerprinter(revision.Algorithm(cfg.Fingerprint.Algorithm), cfg.FingerprintLength())
	if err != nil {
		return Options{}, err
	}
	style, err := revision.ParseNameStyle(cfg.Fingerprint.Style)
	if err != nil {
		return Options{}, err
	}
	policy, err := ParseCorruptPolicy(cfg.Manifest.OnCorrupt)
	if err != nil {
		return Options{}, err
	}

	store, err := revision.OpenFileStore(cfg.Manifest.Path, cfg.Manifest.Format)
	if err != nil {
		return Options{}, err
	}

	classes := make([]AssetClass, len(cfg.Assets))
	for i, a := range cfg.Assets {
		classes[i] = AssetClass{Name: a.Name, Patterns: append([]string(nil), a.Patterns...), Rewrite: a.Rewrite}
	}

	return Options{
		Root:          cfg.Output.Root,
		Store:         store,
		Fingerprinter: fp,
		Style:         style,
		Classes:       classes,
		KeepOriginal:  cfg.KeepOriginal(),
		Prune:         cfg.Prune(),
		Strict:        cfg.Strict(),
		OnCorrupt:     policy,
		Parallel:      cfg.Parallel(),
		Workers:       cfg.Build.Workers,
		Prefix:        cfg.Resolve.URLPrefix,
	}, nil
}

func (o Options) validate() error {
	if o.Root == "" {
		return fmt.Errorf("output root is required")
	}
	if o.Store == nil {
		return fmt.Errorf("manifest store is required")
	}
	if o.Fingerprinter == nil {
		return fmt.Errorf("fingerprinter is required")
	}
	if _, err := ParseCorruptPolicy(string(o.OnCorrupt)); err != nil {
		return err
	}
	return nil
}

// manifestRel returns the manifest path relative to root in slash form,
// or "" when the manifest lives outside root.
func (o Options) manifestRel() string {
	rel, err := filepath.Rel(o.Root, o.Store.Path())
	if err != nil {
		return ""
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return ""
	}
	return rel
}

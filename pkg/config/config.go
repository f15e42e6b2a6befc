// Package config provides configuration management for assetrev.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/assetrev/config.toml)
//  3. Project config (.assetrev/config.toml or assetrev.toml)
//  4. .env file in the project directory (never overrides the real environment)
//  5. Environment variables (ASSETREV_*)
//  6. CLI flags (highest priority)
//
// A loaded Config is treated as an immutable value: commands derive the
// options each stage needs from it and never mutate it afterwards.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Config is the main configuration struct for assetrev.
type Config struct {
	// Output configures where finished assets live.
	Output OutputConfig `toml:"output"`

	// Manifest configures the persisted logical -> revisioned mapping.
	Manifest ManifestConfig `toml:"manifest"`

	// Fingerprint configures content hashing and file naming.
	Fingerprint FingerprintConfig `toml:"fingerprint"`

	// Build configures the revisioning pipeline.
	Build BuildConfig `toml:"build"`

	// Resolve configures URL resolution for the serving layer.
	Resolve ResolveConfig `toml:"resolve"`

	// Watch configures watch mode.
	Watch WatchConfig `toml:"watch"`

	// Assets lists the asset classes to revision, in processing order.
	Assets []AssetConfig `toml:"assets"`

	// Source is the project config file that was loaded, if any.
	Source string `toml:"-"`
}

// OutputConfig holds output directory settings.
type OutputConfig struct {
	// Root is the directory producers write finished assets into.
	// Logical asset paths are relative to it.
	Root string `toml:"root"`

	// KeepOriginal keeps the unrevisioned file next to the revisioned copy.
	KeepOriginal *bool `toml:"keep_original"`
}

// ManifestConfig holds manifest settings.
type ManifestConfig struct {
	// Path is the manifest file location.
	Path string `toml:"path"`

	// Format forces "json" or "yaml"; empty picks from the file extension.
	Format string `toml:"format"`

	// OnCorrupt is the policy for an unparseable manifest: "abort" or "reset".
	OnCorrupt string `toml:"on_corrupt"`
}

// FingerprintConfig holds hashing settings.
type FingerprintConfig struct {
	// Algorithm is "md5", "sha256" or "xxhash".
	Algorithm string `toml:"algorithm"`

	// Length is the number of hex characters kept (0 = full digest).
	Length *int `toml:"length"`

	// Style is "dash" (name-<fp>.ext) or "dot" (name.<fp>.ext).
	Style string `toml:"style"`
}

// BuildConfig holds pipeline settings.
type BuildConfig struct {
	// Parallel fingerprints independent asset classes concurrently.
	Parallel *bool `toml:"parallel"`

	// Workers bounds concurrency when Parallel is set.
	Workers int `toml:"workers"`

	// Prune deletes superseded revisioned files after a build.
	Prune *bool `toml:"prune"`

	// Strict makes any per-asset failure fail the build.
	Strict *bool `toml:"strict"`

	// Before lists producer commands run, in order, before revisioning.
	Before []string `toml:"before"`
}

// ResolveConfig holds serving-layer settings.
type ResolveConfig struct {
	// Pipeline is the ordered strategy list, e.g. "manifest|querystring|passthrough".
	Pipeline string `toml:"pipeline"`

	// URLPrefix is prepended to resolved paths.
	URLPrefix string `toml:"url_prefix"`

	// AssetsBasePath is where query-string tokens look for files.
	// Empty means the output root.
	AssetsBasePath string `toml:"assets_base_path"`

	// QueryParam is the query-string key ("v" gives "?v=<token>").
	QueryParam string `toml:"query_param"`

	// QuerySource is "mtime" or "fingerprint".
	QuerySource string `toml:"query_source"`

	// CacheSize bounds the query-string token cache.
	CacheSize int `toml:"cache_size"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// Debounce is the debounce window in milliseconds.
	Debounce int `toml:"debounce"`
}

// AssetConfig describes one class of finished assets.
type AssetConfig struct {
	// Name identifies the class in logs ("styles", "scripts", ...).
	Name string `toml:"name"`

	// Patterns are doublestar globs relative to the output root.
	Patterns []string `toml:"patterns"`

	// Rewrite rewrites references to other revisioned assets before hashing.
	Rewrite bool `toml:"rewrite"`
}

// Corrupt manifest policies.
const (
	OnCorruptAbort = "abort"
	OnCorruptReset = "reset"
)

// Query-string token sources.
const (
	QuerySourceMtime       = "mtime"
	QuerySourceFingerprint = "fingerprint"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// NewConfig creates a new Config with built-in defaults.
// The defaults mirror a typical CMS theme layout: producers write into
// public/assets/build and templates read public/assets/build/versions.json.
func NewConfig() *Config {
	trueVal := true
	falseVal := false
	length := 10
	return &Config{
		Output: OutputConfig{
			Root:         "public/assets/build",
			KeepOriginal: &falseVal,
		},
		Manifest: ManifestConfig{
			Path:      "public/assets/build/versions.json",
			OnCorrupt: OnCorruptAbort,
		},
		Fingerprint: FingerprintConfig{
			Algorithm: "md5",
			Length:    &length,
			Style:     "dash",
		},
		Build: BuildConfig{
			Parallel: &falseVal,
			Workers:  4,
			Prune:    &trueVal,
			Strict:   &falseVal,
		},
		Resolve: ResolveConfig{
			Pipeline:    "manifest|querystring|passthrough",
			URLPrefix:   "/",
			QueryParam:  "v",
			QuerySource: QuerySourceMtime,
			CacheSize:   1024,
		},
		Watch: WatchConfig{
			Debounce: 500,
		},
		Assets: DefaultAssets(),
	}
}

// DefaultAssets returns the default asset classes. Classes that others
// reference (images, icons, fonts) come before the stylesheets that
// rewrite references to them.
func DefaultAssets() []AssetConfig {
	return []AssetConfig{
		{Name: "images", Patterns: []string{"img/**/*.{png,jpg,jpeg,gif,webp,avif,svg}"}},
		{Name: "icons", Patterns: []string{"icons/*.svg"}},
		{Name: "favicons", Patterns: []string{"favicons/*.{ico,png,svg,webmanifest,xml}"}},
		{Name: "fonts", Patterns: []string{"fonts/**/*.{woff,woff2,ttf,otf,eot}"}},
		{Name: "scripts", Patterns: []string{"js/**/*.js"}},
		{Name: "styles", Patterns: []string{"css/**/*.css"}, Rewrite: true},
	}
}

// KeepOriginal reports whether unrevisioned files are kept.
func (c *Config) KeepOriginal() bool { return boolValue(c.Output.KeepOriginal) }

// Parallel reports whether classes are processed concurrently.
func (c *Config) Parallel() bool { return boolValue(c.Build.Parallel) }

// Prune reports whether stale files are deleted.
func (c *Config) Prune() bool { return boolValue(c.Build.Prune) }

// Strict reports whether per-asset failures fail the build.
func (c *Config) Strict() bool { return boolValue(c.Build.Strict) }

// FingerprintLength returns the configured fingerprint length.
func (c *Config) FingerprintLength() int {
	if c.Fingerprint.Length == nil {
		return 10
	}
	return *c.Fingerprint.Length
}

// AssetsBasePath returns the directory used for query-string tokens.
func (c *Config) AssetsBasePath() string {
	if c.Resolve.AssetsBasePath != "" {
		return c.Resolve.AssetsBasePath
	}
	return c.Output.Root
}

// WithBase returns a copy whose relative paths are anchored at base.
func (c *Config) WithBase(base string) *Config {
	out := c.clone()
	out.Output.Root = anchor(base, out.Output.Root)
	out.Manifest.Path = anchor(base, out.Manifest.Path)
	if out.Resolve.AssetsBasePath != "" {
		out.Resolve.AssetsBasePath = anchor(base, out.Resolve.AssetsBasePath)
	}
	return out
}

// Validate checks enumerations and asset class definitions.
func (c *Config) Validate() error {
	var errs []error

	switch c.Fingerprint.Algorithm {
	case "md5", "sha256", "xxhash":
	default:
		errs = append(errs, fmt.Errorf("%w: fingerprint.algorithm %q", ErrInvalid, c.Fingerprint.Algorithm))
	}
	switch c.Fingerprint.Style {
	case "dash", "dot":
	default:
		errs = append(errs, fmt.Errorf("%w: fingerprint.style %q", ErrInvalid, c.Fingerprint.Style))
	}
	if c.FingerprintLength() < 0 {
		errs = append(errs, fmt.Errorf("%w: fingerprint.length %d", ErrInvalid, c.FingerprintLength()))
	}
	switch c.Manifest.OnCorrupt {
	case OnCorruptAbort, OnCorruptReset:
	default:
		errs = append(errs, fmt.Errorf("%w: manifest.on_corrupt %q", ErrInvalid, c.Manifest.OnCorrupt))
	}
	switch strings.ToLower(c.Manifest.Format) {
	case "", "json", "yaml", "yml":
	default:
		errs = append(errs, fmt.Errorf("%w: manifest.format %q", ErrInvalid, c.Manifest.Format))
	}
	switch c.Resolve.QuerySource {
	case QuerySourceMtime, QuerySourceFingerprint:
	default:
		errs = append(errs, fmt.Errorf("%w: resolve.query_source %q", ErrInvalid, c.Resolve.QuerySource))
	}
	if c.Output.Root == "" {
		errs = append(errs, fmt.Errorf("%w: output.root is empty", ErrInvalid))
	}
	if c.Manifest.Path == "" {
		errs = append(errs, fmt.Errorf("%w: manifest.path is empty", ErrInvalid))
	}
	if c.Parallel() && c.Build.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: build.workers must be at least 1", ErrInvalid))
	}

	seen := make(map[string]bool)
	for i, a := range c.Assets {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%w: assets[%d] has no name", ErrInvalid, i))
		} else if seen[a.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate asset class %q", ErrInvalid, a.Name))
		}
		seen[a.Name] = true
		if len(a.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("%w: asset class %q has no patterns", ErrInvalid, a.Name))
		}
		for _, p := range a.Patterns {
			if !doublestar.ValidatePattern(p) {
				errs = append(errs, fmt.Errorf("%w: asset class %q has bad pattern %q", ErrInvalid, a.Name, p))
			}
		}
	}

	return errors.Join(errs...)
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Output
	if other.Output.Root != "" {
		c.Output.Root = other.Output.Root
	}
	if other.Output.KeepOriginal != nil {
		c.Output.KeepOriginal = other.Output.KeepOriginal
	}

	// Manifest
	if other.Manifest.Path != "" {
		c.Manifest.Path = other.Manifest.Path
	}
	if other.Manifest.Format != "" {
		c.Manifest.Format = other.Manifest.Format
	}
	if other.Manifest.OnCorrupt != "" {
		c.Manifest.OnCorrupt = other.Manifest.OnCorrupt
	}

	// Fingerprint
	if other.Fingerprint.Algorithm != "" {
		c.Fingerprint.Algorithm = other.Fingerprint.Algorithm
	}
	if other.Fingerprint.Length != nil {
		c.Fingerprint.Length = other.Fingerprint.Length
	}
	if other.Fingerprint.Style != "" {
		c.Fingerprint.Style = other.Fingerprint.Style
	}

	// Build
	if other.Build.Parallel != nil {
		c.Build.Parallel = other.Build.Parallel
	}
	if other.Build.Workers != 0 {
		c.Build.Workers = other.Build.Workers
	}
	if other.Build.Prune != nil {
		c.Build.Prune = other.Build.Prune
	}
	if other.Build.Strict != nil {
		c.Build.Strict = other.Build.Strict
	}
	if len(other.Build.Before) > 0 {
		c.Build.Before = other.Build.Before
	}

	// Resolve
	if other.Resolve.Pipeline != "" {
		c.Resolve.Pipeline = other.Resolve.Pipeline
	}
	if other.Resolve.URLPrefix != "" {
		c.Resolve.URLPrefix = other.Resolve.URLPrefix
	}
	if other.Resolve.AssetsBasePath != "" {
		c.Resolve.AssetsBasePath = other.Resolve.AssetsBasePath
	}
	if other.Resolve.QueryParam != "" {
		c.Resolve.QueryParam = other.Resolve.QueryParam
	}
	if other.Resolve.QuerySource != "" {
		c.Resolve.QuerySource = other.Resolve.QuerySource
	}
	if other.Resolve.CacheSize != 0 {
		c.Resolve.CacheSize = other.Resolve.CacheSize
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// Asset classes replace wholesale; merging pattern lists per class
	// would make the processing order ambiguous.
	if len(other.Assets) > 0 {
		c.Assets = slices.Clone(other.Assets)
	}

	if other.Source != "" {
		c.Source = other.Source
	}
}

func (c *Config) clone() *Config {
	out := *c
	out.Build.Before = slices.Clone(c.Build.Before)
	out.Assets = make([]AssetConfig, len(c.Assets))
	for i, a := range c.Assets {
		a.Patterns = slices.Clone(a.Patterns)
		out.Assets[i] = a
	}
	return &out
}

func anchor(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

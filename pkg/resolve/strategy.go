// Package resolve maps logical asset names to the URLs templates should
// emit, trying an ordered list of strategies until one answers.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// ErrNotResolved is returned when no strategy in a pipeline found the asset.
var ErrNotResolved = errors.New("asset not resolved")

// Strategy resolves a logical name. A miss is (_, false, nil); an error
// means the strategy could not answer at all.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, logical string) (string, bool, error)
}

// Settings carries what the built-in strategies need.
type Settings struct {
	// Store is the manifest read by the manifest strategy.
	Store revision.Store

	// AssetsBasePath is the directory logical names are relative to.
	AssetsBasePath string

	// QueryParam is the query-string key, "v" by default.
	QueryParam string

	// QuerySource is "mtime" (default) or "fingerprint".
	QuerySource string

	// Fingerprinter is used when QuerySource is "fingerprint".
	Fingerprinter *revision.Fingerprinter

	// CacheSize bounds the query-string token cache.
	CacheSize int
}

// Factory builds a strategy from settings.
type Factory func(Settings) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"manifest": func(s Settings) (Strategy, error) {
			if s.Store == nil {
				return nil, fmt.Errorf("manifest strategy needs a manifest store")
			}
			return NewManifestStrategy(s.Store), nil
		},
		"querystring": func(s Settings) (Strategy, error) {
			return NewQueryStringStrategy(s)
		},
		"passthrough": func(Settings) (Strategy, error) {
			return Passthrough{}, nil
		},
	}
)

// Register makes a strategy available to pipelines under name, replacing
// any existing registration.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("resolve: Register requires a name and a factory")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Registered returns the registered strategy names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookupFactory(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Passthrough returns the logical name unchanged.
type Passthrough struct{}

func (Passthrough) Name() string { return "passthrough" }

func (Passthrough) Resolve(_ context.Context, logical string) (string, bool, error) {
	return logical, true, nil
}

// normalize turns a template-supplied name into a logical path: slash
// separated, no leading slash, cleaned. It fails for names that escape
// the asset root.
func normalize(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", fmt.Errorf("empty asset name")
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("asset name %q escapes the asset root", name)
	}
	return clean, nil
}

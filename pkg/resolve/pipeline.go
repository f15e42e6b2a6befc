package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/albertocavalcante/assetrev/internal/log"
)

// DefaultPipeline is the strategy order used when none is configured.
const DefaultPipeline = "manifest|querystring|passthrough"

// Resolution is a successful lookup.
type Resolution struct {
	Logical  string `json:"logical"`
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
}

// Pipeline tries strategies in order and prefixes the first answer.
type Pipeline struct {
	strategies []Strategy
	prefix     string
	logger     *slog.Logger
}

// NewPipeline builds a pipeline from a "a|b|c" spec using the registered
// strategies. Unknown names are an error.
func NewPipeline(spec, prefix string, settings Settings) (*Pipeline, error) {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultPipeline
	}

	var strategies []Strategy
	for _, name := range strings.Split(spec, "|") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		factory, ok := lookupFactory(name)
		if !ok {
			return nil, fmt.Errorf("unknown resolve strategy %q (registered: %s)", name, strings.Join(Registered(), ", "))
		}
		s, err := factory(settings)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s strategy: %w", name, err)
		}
		strategies = append(strategies, s)
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("resolve pipeline %q names no strategies", spec)
	}
	return New(prefix, strategies...), nil
}

// New creates a pipeline from explicit strategies.
func New(prefix string, strategies ...Strategy) *Pipeline {
	return &Pipeline{
		strategies: strategies,
		prefix:     prefix,
		logger:     log.Component("resolve"),
	}
}

// Strategies returns the strategy names in order.
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the URL for a logical asset name.
func (p *Pipeline) Resolve(ctx context.Context, name string) (string, error) {
	r, err := p.ResolveDetailed(ctx, name)
	if err != nil {
		return "", err
	}
	return r.URL, nil
}

// ResolveDetailed is Resolve that also reports which strategy answered.
// A strategy that errors is logged and skipped.
func (p *Pipeline) ResolveDetailed(ctx context.Context, name string) (Resolution, error) {
	logical, err := normalize(name)
	if err != nil {
		return Resolution{}, err
	}

	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		out, ok, err := s.Resolve(ctx, logical)
		if err != nil {
			p.logger.Warn("strategy failed, trying next", "strategy", s.Name(), "asset", logical, "error", err)
			continue
		}
		if !ok {
			log.Trace("strategy missed", "strategy", s.Name(), "asset", logical)
			continue
		}
		return Resolution{
			Logical:  logical,
			URL:      p.applyPrefix(out),
			Strategy: s.Name(),
		}, nil
	}
	return Resolution{}, fmt.Errorf("%w: %s", ErrNotResolved, logical)
}

func (p *Pipeline) applyPrefix(u string) string {
	if isAbsoluteURL(u) || p.prefix == "" {
		return u
	}
	return strings.TrimRight(p.prefix, "/") + "/" + strings.TrimLeft(u, "/")
}

func isAbsoluteURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "//")
}

package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/assetrev/pkg/config"
	"github.com/albertocavalcante/assetrev/pkg/revision"
)

type fixture struct {
	root  string
	store *revision.FileStore
}

func newFixture(t *testing.T, entries map[string]string) fixture {
	t.Helper()
	root := t.TempDir()
	store := revision.NewFileStore(filepath.Join(root, "versions.json"))
	if entries != nil {
		require.NoError(t, store.Save(revision.ManifestFromMap(entries)))
	}
	return fixture{root: root, store: store}
}

func (f fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	full := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

func (f fixture) pipeline(t *testing.T, spec string) *Pipeline {
	t.Helper()
	p, err := NewPipeline(spec, "/", Settings{Store: f.store, AssetsBasePath: f.root})
	require.NoError(t, err)
	return p
}

func TestPipelineFallback(t *testing.T) {
	f := newFixture(t, map[string]string{"css/app.css": "css/app-1a2b3c4d5e.css"})
	js := f.write(t, "js/app.js", "x")
	mtime := time.Unix(1700000000, 0)
	require.NoError(t, os.Chtimes(js, mtime, mtime))

	p := f.pipeline(t, DefaultPipeline)
	ctx := context.Background()

	tests := []struct {
		name         string
		logical      string
		wantURL      string
		wantStrategy string
	}{
		{"manifest hit", "css/app.css", "/css/app-1a2b3c4d5e.css", "manifest"},
		{"leading slash", "/css/app.css", "/css/app-1a2b3c4d5e.css", "manifest"},
		{"querystring for unlisted file", "js/app.js", "/js/app.js?v=1700000000", "querystring"},
		{"passthrough for unknown", "img/missing.png", "/img/missing.png", "passthrough"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := p.ResolveDetailed(ctx, tt.logical)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, r.URL)
			assert.Equal(t, tt.wantStrategy, r.Strategy)
		})
	}
}

func TestPipelineNotResolvedWithoutPassthrough(t *testing.T) {
	f := newFixture(t, map[string]string{"css/app.css": "css/app-1.css"})
	p := f.pipeline(t, "manifest|querystring")

	_, err := p.Resolve(context.Background(), "css/other.css")
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestPipelineMissingManifestFallsThrough(t *testing.T) {
	f := newFixture(t, nil)
	p := f.pipeline(t, "manifest|passthrough")

	got, err := p.Resolve(context.Background(), "css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "/css/app.css", got)
}

func TestPipelineCorruptManifestFallsThrough(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "versions.json", "{broken")
	p := f.pipeline(t, "manifest|passthrough")

	r, err := p.ResolveDetailed(context.Background(), "css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "passthrough", r.Strategy)
}

func TestPipelineRejectsEscapingNames(t *testing.T) {
	p := newFixture(t, nil).pipeline(t, "passthrough")

	for _, name := range []string{"", "/", "../secret.txt", "css/../../x"} {
		_, err := p.Resolve(context.Background(), name)
		assert.Error(t, err, "name %q", name)
		assert.False(t, errors.Is(err, ErrNotResolved))
	}
}

func TestPipelinePrefix(t *testing.T) {
	f := newFixture(t, map[string]string{"css/app.css": "css/app-1.css"})

	tests := []struct {
		prefix string
		want   string
	}{
		{"/", "/css/app-1.css"},
		{"", "css/app-1.css"},
		{"/themes/site", "/themes/site/css/app-1.css"},
		{"/themes/site/", "/themes/site/css/app-1.css"},
		{"https://cdn.example.com/", "https://cdn.example.com/css/app-1.css"},
	}
	for _, tt := range tests {
		p, err := NewPipeline("manifest", tt.prefix, Settings{Store: f.store})
		require.NoError(t, err)
		got, err := p.Resolve(context.Background(), "css/app.css")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "prefix %q", tt.prefix)
	}
}

func TestPipelineKeepsAbsoluteResults(t *testing.T) {
	f := newFixture(t, map[string]string{"css/app.css": "https://cdn.example.com/app-1.css"})
	p := f.pipeline(t, "manifest")

	got, err := p.Resolve(context.Background(), "css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/app-1.css", got)
}

func TestNewPipelineErrors(t *testing.T) {
	_, err := NewPipeline("manifest|bogus", "/", Settings{Store: revision.NewFileStore("versions.json")})
	assert.ErrorContains(t, err, "bogus")

	_, err = NewPipeline("manifest", "/", Settings{})
	assert.Error(t, err, "manifest strategy needs a store")

	_, err = NewPipeline(" | ", "/", Settings{})
	assert.Error(t, err)

	_, err = NewPipeline("querystring", "/", Settings{QuerySource: "etag"})
	assert.Error(t, err)
}

func TestNewPipelineEmptySpecUsesDefault(t *testing.T) {
	p, err := NewPipeline("", "/", Settings{Store: revision.NewFileStore("versions.json")})
	require.NoError(t, err)
	assert.Equal(t, []string{"manifest", "querystring", "passthrough"}, p.Strategies())
}

type staticStrategy struct{ url string }

func (s staticStrategy) Name() string { return "static" }

func (s staticStrategy) Resolve(context.Context, string) (string, bool, error) {
	return s.url, true, nil
}

func TestRegisterCustomStrategy(t *testing.T) {
	Register("cdn-static", func(Settings) (Strategy, error) {
		return staticStrategy{url: "//cdn.example.com/bundle.css"}, nil
	})
	assert.Contains(t, Registered(), "cdn-static")

	p, err := NewPipeline("cdn-static|passthrough", "/", Settings{})
	require.NoError(t, err)

	got, err := p.Resolve(context.Background(), "css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "//cdn.example.com/bundle.css", got)

	assert.Panics(t, func() { Register("", nil) })
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }

func (failingStrategy) Resolve(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend down")
}

func TestPipelineSkipsFailingStrategy(t *testing.T) {
	p := New("/", failingStrategy{}, Passthrough{})

	r, err := p.ResolveDetailed(context.Background(), "js/app.js")
	require.NoError(t, err)
	assert.Equal(t, "passthrough", r.Strategy)
}

func TestPipelineCancelled(t *testing.T) {
	p := New("/", Passthrough{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Resolve(ctx, "js/app.js")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManifestStrategyReloadsOnChange(t *testing.T) {
	f := newFixture(t, map[string]string{"css/app.css": "css/app-1.css"})
	s := NewManifestStrategy(f.store)
	ctx := context.Background()

	got, ok, err := s.Resolve(ctx, "css/app.css")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "css/app-1.css", got)

	// A build replaces the manifest; force a distinct mtime.
	require.NoError(t, f.store.Save(revision.ManifestFromMap(map[string]string{"css/app.css": "css/app-22.css"})))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(f.store.Path(), later, later))

	got, ok, err = s.Resolve(ctx, "css/app.css")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "css/app-22.css", got)

	require.NoError(t, f.store.Remove())
	_, ok, err = s.Resolve(ctx, "css/app.css")
	require.NoError(t, err)
	assert.False(t, ok, "a removed manifest is a miss")
}

func TestManifestStrategyReloadsSameSizeSameMtime(t *testing.T) {
	f := newFixture(t, map[string]string{"css/app.css": "css/app-aaaaaaaaaa.css"})
	s := NewManifestStrategy(f.store)
	ctx := context.Background()

	got, _, err := s.Resolve(ctx, "css/app.css")
	require.NoError(t, err)
	require.Equal(t, "css/app-aaaaaaaaaa.css", got)

	before, err := os.Stat(f.store.Path())
	require.NoError(t, err)

	// Same length fingerprint, and a filesystem too coarse to tell the
	// two writes apart by mtime.
	require.NoError(t, f.store.Save(revision.ManifestFromMap(map[string]string{"css/app.css": "css/app-bbbbbbbbbb.css"})))
	require.NoError(t, os.Chtimes(f.store.Path(), before.ModTime(), before.ModTime()))

	after, err := os.Stat(f.store.Path())
	require.NoError(t, err)
	require.Equal(t, before.Size(), after.Size())
	require.True(t, before.ModTime().Equal(after.ModTime()))

	got, _, err = s.Resolve(ctx, "css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "css/app-bbbbbbbbbb.css", got)
}

func TestManifestStrategyCachesUnchangedFile(t *testing.T) {
	f := newFixture(t, map[string]string{"css/app.css": "css/app-1.css"})
	s := NewManifestStrategy(f.store)

	first, err := s.Manifest()
	require.NoError(t, err)
	second, err := s.Manifest()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestQueryStringFingerprintSource(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, "js/app.js", "hello")

	s, err := NewQueryStringStrategy(Settings{
		AssetsBasePath: f.root,
		QueryParam:     "rev",
		QuerySource:    SourceFingerprint,
	})
	require.NoError(t, err)

	got, ok, err := s.Resolve(context.Background(), "js/app.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "js/app.js?rev=5d41402abc", got)
	assert.Equal(t, 1, s.tokens.Len())

	// Same file identity hits the cache.
	_, _, err = s.Resolve(context.Background(), "js/app.js")
	require.NoError(t, err)
	assert.Equal(t, 1, s.tokens.Len())

	f.write(t, "js/app.js", "hello, world")
	got, _, err = s.Resolve(context.Background(), "js/app.js")
	require.NoError(t, err)
	assert.NotEqual(t, "js/app.js?rev=5d41402abc", got)
}

func TestQueryStringMisses(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "css"), 0o755))

	s, err := NewQueryStringStrategy(Settings{AssetsBasePath: f.root})
	require.NoError(t, err)

	_, ok, err := s.Resolve(context.Background(), "js/missing.js")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Resolve(context.Background(), "css")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not assets")
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Resolve.Pipeline = "querystring|passthrough"
	cfg.Resolve.URLPrefix = "/static/"
	cfg = cfg.WithBase(dir)

	full := filepath.Join(cfg.Output.Root, "js", "app.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	mtime := time.Unix(1600000000, 0)
	require.NoError(t, os.Chtimes(full, mtime, mtime))

	p, err := FromConfig(cfg)
	require.NoError(t, err)

	got, err := p.Resolve(context.Background(), "js/app.js")
	require.NoError(t, err)
	assert.Equal(t, "/static/js/app.js?v="+strconv.FormatInt(mtime.Unix(), 10), got)
}

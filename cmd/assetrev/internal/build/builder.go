package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/assetrev/internal/log"
	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// Builder runs builds against one output root and manifest. Operations on
// the same Builder are serialized.
type Builder struct {
	opts   Options
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates a Builder.
func New(opts Options) (*Builder, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid build options: %w", err)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Style == "" {
		opts.Style = revision.StyleDash
	}
	if opts.OnCorrupt == "" {
		opts.OnCorrupt = CorruptAbort
	}
	opts.Classes = slices.Clone(opts.Classes)

	return &Builder{
		opts:   opts,
		logger: log.Component("build"),
	}, nil
}

// Options returns the builder's options.
func (b *Builder) Options() Options { return b.opts }

// Matches reports whether a logical path would be picked up as a source by
// the next build.
func (b *Builder) Matches(logical string) bool {
	if logical == b.opts.manifestRel() || strings.HasSuffix(logical, ".tmp") {
		return false
	}
	if isOutput(b.opts.Root, b.opts.Fingerprinter, b.opts.Style, logical) {
		return false
	}
	_, ok := b.classOf(logical)
	return ok
}

// Run performs a full build.
//
// Per-asset read and write failures exclude the asset and keep its previous
// manifest entry. Cancellation before the manifest is saved returns the
// context error with the previous manifest and previous files untouched.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()

	old, reset, err := b.loadManifest()
	if err != nil {
		return nil, err
	}

	st, err := b.collect(ctx, old, true)
	if err != nil {
		b.discard(st, old)
		return nil, err
	}

	slices.SortFunc(st.assets, func(x, y AssetResult) int {
		return strings.Compare(x.Logical, y.Logical)
	})
	res := &Result{
		Assets: st.assets,
		Failed: st.failed,
		Reset:  reset,
	}
	for _, f := range st.failed {
		b.logger.Warn("asset skipped", "error", f)
	}

	merged, changes := revision.Merge(old, st.fresh)
	res.Manifest = merged
	res.Changes = changes

	if b.opts.Strict && len(st.failed) > 0 {
		b.discard(st, old)
		return res, fmt.Errorf("%w: %w", ErrAssetsFailed, errors.Join(st.failed...))
	}

	// Last point where the build can be abandoned without side effects on
	// the manifest or previously published files.
	if err := ctx.Err(); err != nil {
		b.discard(st, old)
		return nil, err
	}

	if reset || !merged.Equal(old) {
		if err := b.opts.Store.Save(merged); err != nil {
			b.discard(st, old)
			return nil, fmt.Errorf("failed to save manifest %s: %w", b.opts.Store.Path(), err)
		}
		res.Saved = true
		b.logger.Debug("manifest saved", "path", b.opts.Store.Path(), "entries", merged.Len())
	} else {
		b.logger.Debug("manifest unchanged", "path", b.opts.Store.Path())
	}

	res.Stale = revision.StaleFiles(old, merged)
	if b.opts.Prune {
		res.Deleted, res.DeleteErrors = Prune(b.opts.Root, res.Stale, merged)
	}

	if !b.opts.KeepOriginal {
		b.removeOriginals(res, merged)
	}

	res.Duration = time.Since(start)
	b.logger.Info("build complete",
		"added", len(changes.Added),
		"updated", len(changes.Updated),
		"unchanged", len(changes.Unchanged),
		"failed", len(res.Failed),
		"deleted", len(res.Deleted),
		"duration", res.Duration,
	)
	return res, nil
}

// Status computes what Run would change without writing anything.
func (b *Builder) Status(ctx context.Context) (*StatusReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, _, err := b.loadManifest()
	if err != nil {
		return nil, err
	}

	st, err := b.collect(ctx, old, false)
	if err != nil {
		return nil, err
	}

	merged, changes := revision.Merge(old, st.fresh)
	return &StatusReport{
		Changes: changes,
		Stale:   revision.StaleFiles(old, merged),
		Failed:  errorStrings(st.failed),
	}, nil
}

// Clean deletes every physical file the manifest references and then the
// manifest itself. A corrupt manifest is removed without deleting assets.
func (b *Builder) Clean(ctx context.Context) (*CleanResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := &CleanResult{}
	m, err := b.opts.Store.Load()
	if err != nil {
		var corrupt *revision.ManifestCorruptError
		if !errors.As(err, &corrupt) {
			return nil, err
		}
		b.logger.Warn("manifest is corrupt, removing it without deleting assets", "path", corrupt.Path, "error", corrupt.Err)
		m = revision.NewManifest()
	}

	for _, logical := range m.Keys() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		physical, _ := m.Get(logical)
		removed, err := removeUnder(b.opts.Root, physical)
		if err != nil {
			b.logger.Warn("failed to delete file", "path", physical, "error", err)
			res.DeleteErrors = append(res.DeleteErrors, err)
			continue
		}
		if removed {
			res.Deleted = append(res.Deleted, physical)
		}
	}

	existed := b.opts.Store.Exists()
	if err := b.opts.Store.Remove(); err != nil {
		return res, err
	}
	res.ManifestRemoved = existed

	b.logger.Info("clean complete", "deleted", len(res.Deleted), "manifest_removed", existed)
	return res, nil
}

// Retire removes logical keys from the manifest and deletes their physical
// files. This is the only way an entry leaves the manifest.
func (b *Builder) Retire(ctx context.Context, logicals ...string) (*RetireResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.opts.Store.Load()
	if err != nil {
		return nil, err
	}

	res := &RetireResult{}
	next := m.Clone()
	for _, l := range logicals {
		if _, ok := next.Delete(l); ok {
			res.Retired = append(res.Retired, l)
		} else {
			res.Missing = append(res.Missing, l)
		}
	}
	if len(res.Retired) == 0 {
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.opts.Store.Save(next); err != nil {
		return nil, fmt.Errorf("failed to save manifest %s: %w", b.opts.Store.Path(), err)
	}

	live := next.Values()
	for _, l := range res.Retired {
		physical, _ := m.Get(l)
		if _, ok := live[physical]; ok {
			continue
		}
		removed, err := removeUnder(b.opts.Root, physical)
		if err != nil {
			b.logger.Warn("failed to delete retired file", "path", physical, "error", err)
			res.DeleteErrors = append(res.DeleteErrors, err)
			continue
		}
		if removed {
			res.Deleted = append(res.Deleted, physical)
		}
	}

	b.logger.Info("retired assets", "retired", len(res.Retired), "missing", len(res.Missing))
	return res, nil
}

// loadManifest applies the corrupt manifest policy. The bool result
// reports whether a corrupt manifest was discarded.
func (b *Builder) loadManifest() (*revision.Manifest, bool, error) {
	m, err := b.opts.Store.Load()
	if err == nil {
		return m, false, nil
	}

	var corrupt *revision.ManifestCorruptError
	if errors.As(err, &corrupt) && b.opts.OnCorrupt == CorruptReset {
		b.logger.Warn("manifest is corrupt, starting from an empty manifest", "path", corrupt.Path, "error", corrupt.Err)
		return revision.NewManifest(), true, nil
	}
	return nil, false, err
}

// staging accumulates fresh mappings from concurrently processed classes.
type staging struct {
	mu     sync.Mutex
	old    *revision.Manifest
	fresh  *revision.Manifest
	assets []AssetResult
	failed []error

	// byPhysical maps previously published files back to their keys so
	// references already rewritten by an earlier build can be followed.
	byPhysical map[string]string
	// refreshed holds tentative mappings while published files of
	// rewrite classes are brought up to date.
	refreshed map[string]string
}

func newStaging(old *revision.Manifest) *staging {
	byPhysical := make(map[string]string, old.Len())
	for _, logical := range old.Keys() {
		physical, _ := old.Get(logical)
		byPhysical[physical] = logical
	}
	return &staging{
		old:        old,
		fresh:      revision.NewManifest(),
		byPhysical: byPhysical,
	}
}

func (s *staging) add(r AssetResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assets = append(s.assets, r)
	if r.Err != nil {
		s.failed = append(s.failed, r.Err)
		return
	}
	s.fresh.Set(r.Logical, r.Physical)
}

// lookup maps a referenced path to its newest revisioned path. The
// reference is either a logical path or a file published by an earlier
// build.
func (s *staging) lookup(ref string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.current(ref); ok {
		return p, true
	}
	if logical, ok := s.byPhysical[ref]; ok {
		return s.current(logical)
	}
	return "", false
}

// current prefers mappings produced by this build over the previous ones.
func (s *staging) current(logical string) (string, bool) {
	if p, ok := s.fresh.Get(logical); ok {
		return p, true
	}
	if p, ok := s.refreshed[logical]; ok {
		return p, true
	}
	return s.old.Get(logical)
}

func (s *staging) setRefreshed(logical, physical string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshed == nil {
		s.refreshed = make(map[string]string)
	}
	s.refreshed[logical] = physical
}

// collect scans and processes every class. With write unset nothing is
// written to disk.
func (b *Builder) collect(ctx context.Context, old *revision.Manifest, write bool) (*staging, error) {
	skip := make([]string, 0, old.Len()+1)
	if rel := b.opts.manifestRel(); rel != "" {
		skip = append(skip, rel)
	}
	for v := range old.Values() {
		skip = append(skip, v)
	}

	scanner := NewScanner(b.opts.Root, b.opts.Fingerprinter, b.opts.Style, skip)
	groups, err := scanner.Scan(ctx, b.opts.Classes)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", b.opts.Root, err)
	}

	st := newStaging(old)

	seen := make(map[string]bool)
	var plain, rewriting []ClassFiles
	for _, g := range groups {
		for _, f := range g.Files {
			seen[f] = true
		}
		if g.Class.Rewrite {
			rewriting = append(rewriting, g)
		} else {
			plain = append(plain, g)
		}
	}

	if b.opts.Parallel && len(plain) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.opts.Workers)
		for _, cf := range plain {
			g.Go(func() error {
				return b.processClass(gctx, cf, nil, write, st.add)
			})
		}
		if err := g.Wait(); err != nil {
			return st, err
		}
	} else {
		for _, cf := range plain {
			if err := b.processClass(ctx, cf, nil, write, st.add); err != nil {
				return st, err
			}
		}
	}

	// Rewrite classes run last and in order so they see every mapping
	// produced so far, including earlier files of their own class.
	rw := NewRewriter(st.lookup, b.opts.Prefix)
	for _, cf := range rewriting {
		if err := b.processClass(ctx, cf, rw, write, st.add); err != nil {
			return st, err
		}
	}

	if err := b.refreshPublished(ctx, st, seen, rw, write); err != nil {
		return st, err
	}
	return st, nil
}

func (b *Builder) processClass(ctx context.Context, cf ClassFiles, rw *Rewriter, write bool, emit func(AssetResult)) error {
	b.logger.Debug("processing class", "class", cf.Class.Name, "files", len(cf.Files))
	for _, logical := range cf.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(b.processAsset(cf.Class.Name, logical, rw, write))
	}
	return nil
}

func (b *Builder) processAsset(class, logical string, rw *Rewriter, write bool) AssetResult {
	res := AssetResult{Class: class, Logical: logical}

	src := filepath.Join(b.opts.Root, filepath.FromSlash(logical))
	data, err := os.ReadFile(src)
	if err != nil {
		res.Err = &revision.ReadError{Path: src, Err: err}
		return res
	}

	if rw != nil {
		data, res.Rewrites = rw.Rewrite(logical, data)
	}
	b.publish(&res, data, write)
	return res
}

// publish fingerprints data and, with write set, stores it under its
// revisioned name.
func (b *Builder) publish(res *AssetResult, data []byte, write bool) {
	res.Fingerprint = b.opts.Fingerprinter.SumBytes(data)
	res.Physical = revision.RevisionedPath(res.Logical, res.Fingerprint, b.opts.Style)
	if !write {
		return
	}

	dst := filepath.Join(b.opts.Root, filepath.FromSlash(res.Physical))
	if info, err := os.Stat(dst); err == nil && info.Mode().IsRegular() && info.Size() == int64(len(data)) {
		log.Trace("revisioned file already present", "path", res.Physical)
		return
	}

	if err := revision.WriteFileAtomic(dst, data, 0o644); err != nil {
		res.Err = &revision.WriteError{Path: dst, Err: err}
		return
	}
	res.Written = true
	log.Trace("wrote revisioned file", "logical", res.Logical, "physical", res.Physical)
}

// discard removes the revisioned files an abandoned build wrote. Nothing
// references them, and their names keep later scans from picking them up.
func (b *Builder) discard(st *staging, old *revision.Manifest) {
	if st == nil {
		return
	}
	live := old.Values()
	removed := 0
	for _, a := range st.assets {
		if !a.Written || a.Err != nil {
			continue
		}
		if _, ok := live[a.Physical]; ok {
			continue
		}
		ok, err := removeUnder(b.opts.Root, a.Physical)
		if err != nil {
			b.logger.Warn("failed to remove file from abandoned build", "path", a.Physical, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		b.logger.Debug("removed files from abandoned build", "count", removed)
	}
}

// removeOriginals deletes the unrevisioned sources of the assets that were
// revisioned successfully.
func (b *Builder) removeOriginals(res *Result, merged *revision.Manifest) {
	live := merged.Values()
	for _, a := range res.Succeeded() {
		if _, ok := live[a.Logical]; ok {
			continue
		}
		removed, err := removeUnder(b.opts.Root, a.Logical)
		if err != nil {
			b.logger.Warn("failed to remove original", "path", a.Logical, "error", err)
			res.DeleteErrors = append(res.DeleteErrors, err)
			continue
		}
		if removed {
			res.Originals = append(res.Originals, a.Logical)
		}
	}
}

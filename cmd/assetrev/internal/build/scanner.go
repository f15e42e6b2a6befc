package build

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/kinds"
	"github.com/albertocavalcante/assetrev/internal/log"
	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// ClassFiles holds the logical paths a class matched, sorted.
type ClassFiles struct {
	Class AssetClass
	Files []string
}

// Scanner finds the unrevisioned assets under an output root.
type Scanner struct {
	root      string
	fp        *revision.Fingerprinter
	style     revision.NameStyle
	skipFiles map[string]bool
}

// NewScanner creates a scanner. skip lists logical paths never treated as
// sources: the manifest file and the physical files it references.
func NewScanner(root string, fp *revision.Fingerprinter, style revision.NameStyle, skip []string) *Scanner {
	skipFiles := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipFiles[s] = true
	}
	return &Scanner{
		root:      root,
		fp:        fp,
		style:     style,
		skipFiles: skipFiles,
	}
}

// Scan walks the root once and assigns each file to the first class whose
// patterns match it. A missing root yields empty classes.
func (s *Scanner) Scan(ctx context.Context, classes []AssetClass) ([]ClassFiles, error) {
	out := make([]ClassFiles, len(classes))
	for i, c := range classes {
		out[i].Class = c
	}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if path == s.root && isNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}

		if d.IsDir() {
			if path != s.root && kinds.IsIgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		logical := filepath.ToSlash(rel)
		if s.skip(logical) {
			return nil
		}

		for i, c := range classes {
			ok, err := matchAny(c.Patterns, logical)
			if err != nil {
				return fmt.Errorf("asset class %q: %w", c.Name, err)
			}
			if ok {
				out[i].Files = append(out[i].Files, logical)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range out {
		slices.Sort(out[i].Files)
	}
	return out, nil
}

// skip reports whether a file is build output rather than a source.
func (s *Scanner) skip(logical string) bool {
	if s.skipFiles[logical] {
		return true
	}
	if strings.HasSuffix(logical, ".tmp") {
		return true
	}
	return isOutput(s.root, s.fp, s.style, logical)
}

// isOutput reports whether logical is a revisioned file: its name carries a
// fingerprint and that fingerprint is the one of its own content. A source
// whose name only looks revisioned (banner-2024011512.jpg) is not an
// output. Unreadable files are judged by name alone.
func isOutput(root string, fp *revision.Fingerprinter, style revision.NameStyle, logical string) bool {
	want, ok := revision.FingerprintOf(logical, fp.Length(), style)
	if !ok {
		return false
	}
	got, err := fp.SumFile(filepath.Join(root, filepath.FromSlash(logical)))
	if err != nil {
		return true
	}
	if got != want {
		log.Debug("name looks revisioned but does not match its content, treating it as a source",
			"path", logical, "fingerprint", got)
		return false
	}
	return true
}

func matchAny(patterns []string, name string) (bool, error) {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

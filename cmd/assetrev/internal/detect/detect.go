// Package detect provides asset kind detection for an output root.
//
// # Detection Algorithm
//
// Detection is DETERMINISTIC: given the same directory contents, it always
// produces the same result. The algorithm:
//
//  1. Walk the directory tree, skipping ignored directories
//  2. For each file, map its extension to a kind via kinds.KindOf
//  3. Record the top-level directory the file lives under
//
// Classes turns the result into asset class definitions suitable for a
// freshly written assetrev.toml.
package detect

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/kinds"
	"github.com/albertocavalcante/assetrev/pkg/config"
	"github.com/albertocavalcante/assetrev/pkg/util"
)

// Kinds detects asset kinds present under root.
//
// Returns kinds in processing order (e.g., ["images", "scripts", "styles"]).
// A missing root yields no kinds.
func Kinds(root string) ([]string, error) {
	found, err := scan(root)
	if err != nil {
		return nil, err
	}

	var result []string
	for _, kind := range kinds.Order {
		if _, ok := found[kind]; ok {
			result = append(result, kind)
		}
	}
	return result, nil
}

// HasKind checks if a specific kind is detected under root.
func HasKind(root, kind string) (bool, error) {
	found, err := Kinds(root)
	if err != nil {
		return false, err
	}
	return slices.Contains(found, kind), nil
}

// Classes proposes one asset class per detected kind. Each class matches
// the kind's extensions under every top-level directory where the kind was
// seen; files directly in root match by extension alone.
func Classes(root string) ([]config.AssetConfig, error) {
	found, err := scan(root)
	if err != nil {
		return nil, err
	}

	var classes []config.AssetConfig
	for _, kind := range kinds.Order {
		dirs, ok := found[kind]
		if !ok {
			continue
		}
		exts := extGlob(kinds.Extensions[kind])
		var patterns []string
		for _, dir := range util.SortedKeys(dirs) {
			if dir == "" {
				patterns = append(patterns, "*"+exts)
				continue
			}
			patterns = append(patterns, dir+"/**/*"+exts)
		}
		classes = append(classes, config.AssetConfig{
			Name:     kind,
			Patterns: patterns,
			Rewrite:  kinds.Rewrites(kind),
		})
	}
	return classes, nil
}

// scan maps kind -> set of top-level directories ("" for root itself).
func scan(root string) (map[string]map[string]bool, error) {
	found := make(map[string]map[string]bool)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}

		if d.IsDir() {
			if path != root && kinds.IsIgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		kind := kinds.KindOf(filepath.Ext(path))
		if kind == "" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		top := ""
		if i := strings.IndexByte(filepath.ToSlash(rel), '/'); i >= 0 {
			top = filepath.ToSlash(rel)[:i]
		}
		if found[kind] == nil {
			found[kind] = make(map[string]bool)
		}
		found[kind][top] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return found, nil
}

func extGlob(exts []string) string {
	if len(exts) == 1 {
		return exts[0]
	}
	trimmed := make([]string, len(exts))
	for i, e := range exts {
		trimmed[i] = strings.TrimPrefix(e, ".")
	}
	return ".{" + strings.Join(trimmed, ",") + "}"
}

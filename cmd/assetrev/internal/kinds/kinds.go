// Package kinds provides the shared asset kind table for assetrev.
//
// # Single Source of Truth
//
// This package defines the DETERMINISTIC mapping between asset kinds and
// file extensions used by detection (assetrev init). Revisioning itself is
// driven by the configured asset class globs, not by this table.
//
// # Usage
//
//	exts := kinds.ExtensionSet([]string{"styles", "scripts"})
//	if exts[filepath.Ext(file)] {
//	    // file is a stylesheet or a script
//	}
//
// # Adding New Kinds
//
// To add a kind, add an entry to Extensions and place it in Order. Kinds
// whose files reference other assets go last in Order so their references
// can be rewritten.
package kinds

import "strings"

// Extensions maps asset kinds to their file extensions.
//
// DETERMINISTIC: The same kind always maps to the same extensions.
var Extensions = map[string][]string{
	"styles":  {".css"},
	"scripts": {".js", ".mjs"},
	"images":  {".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif"},
	"icons":   {".svg", ".ico"},
	"fonts":   {".woff", ".woff2", ".ttf", ".otf", ".eot"},
}

// Order is the processing order for kinds. Referencing kinds come last.
var Order = []string{"images", "icons", "fonts", "scripts", "styles"}

// Rewrites reports whether files of the kind reference other assets.
func Rewrites(kind string) bool {
	return kind == "styles"
}

// IgnoredDirs contains directory prefixes to skip during scanning/watching.
//
// Note: Prefix matching means "." matches every hidden directory,
// including .assetrev.
var IgnoredDirs = []string{
	".",            // Hidden directories
	"node_modules", // Node.js dependencies
	"vendor",       // Vendored deps
}

// IsIgnoredDir reports whether a directory name matches an ignored prefix.
func IsIgnoredDir(name string) bool {
	for _, prefix := range IgnoredDirs {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ExtensionSet returns a set of all extensions for the given kinds.
//
// If names is nil or empty, returns all known extensions.
func ExtensionSet(names []string) map[string]bool {
	extensions := make(map[string]bool)

	if len(names) == 0 {
		for _, exts := range Extensions {
			for _, ext := range exts {
				extensions[ext] = true
			}
		}
	} else {
		for _, kind := range names {
			if exts, ok := Extensions[kind]; ok {
				for _, ext := range exts {
					extensions[ext] = true
				}
			}
		}
	}

	return extensions
}

// KindOf returns the kind owning ext, or "" if none does.
func KindOf(ext string) string {
	ext = strings.ToLower(ext)
	for _, kind := range Order {
		for _, e := range Extensions[kind] {
			if e == ext {
				return kind
			}
		}
	}
	return ""
}

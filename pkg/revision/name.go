package revision

import (
	"fmt"
	"path"
	"strings"
)

// NameStyle selects how a fingerprint is embedded in a file name.
type NameStyle string

const (
	// StyleDash produces name-<fp>.ext (gulp-rev convention).
	StyleDash NameStyle = "dash"
	// StyleDot produces name.<fp>.ext.
	StyleDot NameStyle = "dot"
)

// ParseNameStyle validates a configured style. Empty means StyleDash.
func ParseNameStyle(s string) (NameStyle, error) {
	switch NameStyle(s) {
	case "", StyleDash:
		return StyleDash, nil
	case StyleDot:
		return StyleDot, nil
	default:
		return "", fmt.Errorf("unknown name style %q (want %q or %q)", s, StyleDash, StyleDot)
	}
}

func (s NameStyle) separator() string {
	if s == StyleDot {
		return "."
	}
	return "-"
}

// RevisionedPath embeds fingerprint into logical, keeping directory and extension.
//
//	RevisionedPath("css/app.css", "a1b2c3", StyleDash)    == "css/app-a1b2c3.css"
//	RevisionedPath("js/app.min.js", "a1b2c3", StyleDot)   == "js/app.min.a1b2c3.js"
func RevisionedPath(logical, fingerprint string, style NameStyle) string {
	dir, file := path.Split(logical)
	stem, ext := splitExt(file)
	return dir + stem + style.separator() + fingerprint + ext
}

// IsRevisioned reports whether the file name already carries a fingerprint
// of the given length and style.
func IsRevisioned(physical string, length int, style NameStyle) bool {
	_, ok := FingerprintOf(physical, length, style)
	return ok
}

// FingerprintOf extracts the fingerprint embedded in a revisioned name.
//
//	FingerprintOf("css/app-5d41402abc.css", 10, StyleDash) == "5d41402abc", true
func FingerprintOf(physical string, length int, style NameStyle) (string, bool) {
	if length <= 0 {
		return "", false
	}
	stem, _ := splitExt(path.Base(physical))
	if len(stem) <= length {
		return "", false
	}
	fp := stem[len(stem)-length:]
	if !isLowerHex(fp) || !strings.HasSuffix(stem[:len(stem)-length], style.separator()) {
		return "", false
	}
	return fp, true
}

// splitExt splits a base name into stem and final extension.
// Dotfiles and extensionless names have no extension.
func splitExt(file string) (string, string) {
	ext := path.Ext(file)
	if ext == file || ext == "." {
		return file, ""
	}
	return strings.TrimSuffix(file, ext), ext
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return s != ""
}

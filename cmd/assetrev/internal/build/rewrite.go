package build

import (
	"path"
	"regexp"
	"strings"
)

// refPattern matches CSS url() references (quoted or bare) and quoted
// string literals such as @import targets.
var refPattern = regexp.MustCompile(`url\(\s*(?:"([^"\n]*)"|'([^'\n]*)'|([^'"()\s]+))\s*\)|"([^"\n]+)"|'([^'\n]+)'`)

// Lookup maps a logical path to its current revisioned path.
type Lookup func(logical string) (string, bool)

// Rewriter replaces references to known logical assets with their
// revisioned paths.
type Rewriter struct {
	lookup Lookup
	prefix string
}

// NewRewriter creates a rewriter. Absolute references are recognized when
// they start with prefix ("/" by default).
func NewRewriter(lookup Lookup, prefix string) *Rewriter {
	if prefix == "" {
		prefix = "/"
	}
	return &Rewriter{lookup: lookup, prefix: prefix}
}

// Rewrite rewrites references in content, resolving relative ones against
// the directory of referrer (a logical path). It returns the new content
// and the number of references rewritten. Content is returned unchanged
// when nothing matched.
func (r *Rewriter) Rewrite(referrer string, content []byte) ([]byte, int) {
	matches := refPattern.FindAllSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, 0
	}

	var out []byte
	last := 0
	count := 0
	for _, m := range matches {
		start, end := refGroup(m)
		if start < 0 {
			continue
		}
		replacement, ok := r.rewriteRef(referrer, string(content[start:end]))
		if !ok {
			continue
		}
		out = append(out, content[last:start]...)
		out = append(out, replacement...)
		last = end
		count++
	}
	if count == 0 {
		return content, 0
	}
	out = append(out, content[last:]...)
	return out, count
}

// refGroup returns the bounds of whichever capture group matched.
func refGroup(m []int) (int, int) {
	for g := 1; g*2+1 < len(m); g++ {
		if m[g*2] >= 0 {
			return m[g*2], m[g*2+1]
		}
	}
	return -1, -1
}

func (r *Rewriter) rewriteRef(referrer, ref string) (string, bool) {
	// Query strings and fragments are carried over untouched.
	p, suffix := ref, ""
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		p, suffix = ref[:i], ref[i:]
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return "", false
	}

	if r.matchesPrefix(p) {
		logical := path.Clean(strings.TrimPrefix(p, r.prefix))
		physical, ok := r.lookup(logical)
		if !ok {
			return "", false
		}
		return r.prefix + physical + suffix, true
	}
	if isExternal(ref) || strings.HasPrefix(p, "/") {
		return "", false
	}

	logical := path.Join(path.Dir(referrer), p)
	if logical == ".." || strings.HasPrefix(logical, "../") {
		return "", false
	}
	physical, ok := r.lookup(logical)
	if !ok {
		return "", false
	}

	// Keep the author's relative spelling when the revisioned file sits
	// next to the logical one; otherwise compute a fresh relative path.
	if path.Dir(physical) == path.Dir(logical) {
		return p[:len(p)-len(path.Base(p))] + path.Base(physical) + suffix, true
	}
	return relativeTo(path.Dir(referrer), physical) + suffix, true
}

// matchesPrefix reports whether p is an absolute reference under the
// configured URL prefix.
func (r *Rewriter) matchesPrefix(p string) bool {
	if !strings.HasPrefix(p, r.prefix) {
		return false
	}
	if isExternal(r.prefix) {
		return true
	}
	return strings.HasPrefix(r.prefix, "/") && !isExternal(p)
}

func isExternal(ref string) bool {
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"data:", "http:", "https:", "//", "#", "mailto:", "about:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// relativeTo returns target relative to dir, both slash-separated and
// relative to the same root.
func relativeTo(dir, target string) string {
	if dir == "." {
		return target
	}
	from := strings.Split(dir, "/")
	to := strings.Split(target, "/")
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	parts := make([]string, 0, len(from)-i+len(to)-i)
	for range from[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, to[i:]...)
	return strings.Join(parts, "/")
}

package build

import (
	"bytes"
	"context"
	"os"

	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// published is a file of a rewrite class whose source is gone.
type published struct {
	class    string
	logical  string
	content  []byte
	previous string

	data     []byte
	physical string
	rewrites int
}

// refreshPublished brings published files of rewrite classes up to date
// when their sources were not part of this build. Their references were
// rewritten by an earlier build; when any now resolve to a different
// revisioned file the content is rewritten again and republished under a
// new fingerprint, superseding the old file like a rebuilt source would.
func (b *Builder) refreshPublished(ctx context.Context, st *staging, seen map[string]bool, rw *Rewriter, write bool) error {
	var items []*published
	for _, logical := range st.old.Keys() {
		if seen[logical] {
			continue
		}
		class, ok := b.classOf(logical)
		if !ok || !class.Rewrite {
			continue
		}
		physical, _ := st.old.Get(logical)
		full, err := underRoot(b.opts.Root, physical)
		if err != nil {
			continue
		}
		content, err := os.ReadFile(full)
		if err != nil {
			b.logger.Debug("published file unreadable, references not refreshed", "path", physical, "error", err)
			continue
		}
		items = append(items, &published{
			class:    class.Name,
			logical:  logical,
			content:  content,
			previous: physical,
			physical: physical,
		})
	}
	if len(items) == 0 {
		return nil
	}

	// Published files may reference each other, so repeat until no name
	// changes. A reference cycle never settles and stops after one pass
	// per file.
	settled := false
	for pass := 0; pass <= len(items) && !settled; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		settled = true
		for _, it := range items {
			data, n := rw.Rewrite(it.logical, it.content)
			target := it.previous
			if !bytes.Equal(data, it.content) {
				target = revision.RevisionedPath(it.logical, b.opts.Fingerprinter.SumBytes(data), b.opts.Style)
			}
			if target == it.physical {
				continue
			}
			it.data, it.physical, it.rewrites = data, target, n
			st.setRefreshed(it.logical, target)
			settled = false
		}
	}
	if !settled {
		b.logger.Warn("published files reference each other in a cycle; references may be out of date")
	}

	for _, it := range items {
		if it.physical == it.previous {
			continue
		}
		res := AssetResult{Class: it.class, Logical: it.logical, Rewrites: it.rewrites}
		b.publish(&res, it.data, write)
		b.logger.Debug("refreshed references in published file",
			"logical", it.logical, "from", it.previous, "to", res.Physical)
		st.add(res)
	}
	return nil
}

// classOf returns the first class whose patterns match logical.
func (b *Builder) classOf(logical string) (AssetClass, bool) {
	for _, c := range b.opts.Classes {
		if ok, _ := matchAny(c.Patterns, logical); ok {
			return c, true
		}
	}
	return AssetClass{}, false
}

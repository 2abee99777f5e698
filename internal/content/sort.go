package content

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"git.home.luguber.info/inful/photobuilder/internal/manifest"
)

// SortSpec selects the ordering of a content list.
type SortSpec struct {
	Field      string
	Descending bool
	// Fallback is consulted when Field resolves to nothing for an item.
	Fallback string
}

// Override applies a per-gallery "field" or "field:direction" string on top
// of s. An empty override returns s unchanged. The fallback is kept.
func (s SortSpec) Override(override string) SortSpec {
	override = strings.TrimSpace(override)
	if override == "" {
		return s
	}
	field, dir, hasDir := strings.Cut(override, ":")
	out := s
	out.Field = strings.TrimSpace(field)
	if hasDir {
		out.Descending = strings.EqualFold(strings.TrimSpace(dir), "desc")
	}
	return out
}

// Sort orders items in place by spec. Items whose keys compare equal are
// ordered by filename, case-insensitively, then by source path.
func Sort(items []manifest.GalleryContent, spec SortSpec) {
	if len(items) < 2 {
		return
	}
	primary, _ := Lookup(spec.Field)
	fallback, _ := Lookup(spec.Fallback)

	type keyed struct {
		item   manifest.GalleryContent
		key    Value
		folded string
	}
	fold := cases.Fold()
	rows := make([]keyed, len(items))
	for i, it := range items {
		var key Value
		if primary != nil {
			key = primary(it)
		}
		if key.IsZero() && fallback != nil {
			key = fallback(it)
		}
		rows[i] = keyed{item: it, key: key, folded: fold.String(it.Filename())}
	}

	cmp := NewComparer()
	slices.SortStableFunc(rows, func(a, b keyed) int {
		c := cmp.Compare(a.key, b.key)
		if c != 0 && spec.Descending && !a.key.IsZero() && !b.key.IsZero() {
			c = -c
		}
		if c != 0 {
			return c
		}
		if c = strings.Compare(a.folded, b.folded); c != 0 {
			return c
		}
		return strings.Compare(a.item.SourcePath(), b.item.SourcePath())
	})
	for i := range rows {
		items[i] = rows[i].item
	}
}

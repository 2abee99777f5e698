package scan

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"git.home.luguber.info/inful/photobuilder/internal/content"
	"git.home.luguber.info/inful/photobuilder/internal/frontmatter"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
	"git.home.luguber.info/inful/photobuilder/internal/navigation"
	"git.home.luguber.info/inful/photobuilder/internal/query"
	"git.home.luguber.info/inful/photobuilder/internal/util/sets"
)

// gallery is a directory with gallery semantics plus its index frontmatter.
type gallery struct {
	dir  string
	slug string
	page frontmatter.Page
	used bool
}

type treeBuilder struct {
	s         *Scanner
	sortSpec  content.SortSpec
	bySlug    map[string]*gallery
	byDir     map[string]*gallery
	taken     sets.Set[string] // lower-cased page slugs, "" is the home page
	images    map[string][]manifest.GalleryContent
	markdown  map[string][]manifest.GalleryContent
	all       []manifest.GalleryContent
	galleries int
}

func newTreeBuilder(s *Scanner, src *sourceTree, images map[string]*manifest.ImageContent) *treeBuilder {
	tb := &treeBuilder{
		s: s,
		sortSpec: content.SortSpec{
			Field:      s.snap.SortField,
			Descending: strings.EqualFold(s.snap.SortDirection, "desc"),
			Fallback:   s.snap.SortFallback,
		},
		bySlug:   map[string]*gallery{},
		byDir:    map[string]*gallery{},
		taken:    sets.New(""),
		images:   map[string][]manifest.GalleryContent{},
		markdown: map[string][]manifest.GalleryContent{},
	}

	for _, f := range src.images {
		img, ok := images[f.key]
		if !ok {
			continue
		}
		item := manifest.GalleryContent{Image: img}
		tb.images[f.dir] = append(tb.images[f.dir], item)
		tb.all = append(tb.all, item)
	}
	for _, f := range src.markdown {
		tb.markdown[f.dir] = append(tb.markdown[f.dir], manifest.GalleryContent{Markdown: &manifest.MarkdownContent{
			Filename:   f.name,
			SourcePath: f.key,
			FileSize:   f.size,
			Hash:       manifest.SourceHash(f.name, f.modTime, f.size),
		}})
	}

	dirs := make([]string, 0, len(src.galleries))
	for dir := range src.galleries {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	for _, dir := range dirs {
		g := &gallery{dir: dir, page: tb.readIndex(dir)}
		if dir != "" {
			g.slug = tb.claim(navigation.GallerySlug(dir, g.page), dir)
			tb.bySlug[g.slug] = g
		}
		tb.byDir[dir] = g
	}
	return tb
}

// claim reserves a page slug for owner. A slug already taken, compared
// case-insensitively, gets the first free numeric suffix. Only the home page
// may have the empty slug.
func (tb *treeBuilder) claim(slug, owner string) string {
	base := strings.Trim(slug, "/")
	if base == "" {
		base = "gallery"
	}
	slug = base
	for n := 2; tb.taken.Has(strings.ToLower(slug)); n++ {
		slug = fmt.Sprintf("%s-%d", base, n)
	}
	tb.taken.Add(strings.ToLower(slug))
	if slug != base {
		tb.s.logger.Warn("Gallery slug already in use, publishing under another",
			logfields.Path(owner), slog.String("wanted", base), logfields.Slug(slug))
	}
	return slug
}

// lookup finds the directory gallery a navigation item refers to, by path
// first and then by slug.
func (tb *treeBuilder) lookup(it navigation.Item) *gallery {
	if it.Path != "" {
		if g := tb.byDir[it.Path]; g != nil && g.dir != "" {
			return g
		}
	}
	if it.Slug == "" {
		return nil
	}
	return tb.bySlug[it.Slug]
}

func (tb *treeBuilder) readIndex(dir string) frontmatter.Page {
	p := filepath.Join(tb.s.snap.SourceDir, filepath.FromSlash(dir), content.IndexFile)
	data, err := os.ReadFile(p)
	if err != nil {
		return frontmatter.Page{}
	}
	page, _, err := frontmatter.DecodePage(data)
	if err != nil {
		tb.s.logger.Warn("Ignoring invalid gallery index", logfields.Path(p), logfields.Error(err))
		return frontmatter.Page{}
	}
	return page
}

// build assembles the tree: the home gallery as root, one child per
// navigation item, then any gallery the navigation never mentions as a hidden
// child of the root so it still gets a page.
func (tb *treeBuilder) build(items []navigation.Item) *manifest.Entry {
	home := tb.byDir[""]
	home.used = true
	title := home.page.Title
	if title == "" {
		title = tb.s.snap.Site.Title
	}
	root := tb.galleryEntry(title, home)
	root.Hidden = false

	for _, it := range items {
		root.Children = append(root.Children, tb.convert(it, ""))
	}

	var unlisted []*gallery
	for _, g := range tb.byDir {
		if !g.used {
			unlisted = append(unlisted, g)
		}
	}
	slices.SortFunc(unlisted, func(a, b *gallery) int { return strings.Compare(a.dir, b.dir) })
	for _, g := range unlisted {
		g.used = true
		_, label := navigation.StripOrder(path.Base(g.dir))
		if g.page.Title != "" {
			label = g.page.Title
		}
		e := tb.galleryEntry(label, g)
		e.Hidden = true
		tb.s.logger.Debug("Gallery not in navigation, adding as hidden page", logfields.Gallery(g.dir))
		root.Children = append(root.Children, e)
	}
	return root
}

func (tb *treeBuilder) convert(it navigation.Item, parent string) *manifest.Entry {
	var e *manifest.Entry
	g := tb.lookup(it)
	switch {
	case g != nil:
		g.used = true
		e = tb.galleryEntry(it.Text, g)
		e.Hidden = e.Hidden || it.Hidden
		if e.Filter == "" && it.Filter != "" {
			e.Filter = it.Filter
			e.Content = tb.contentFor(e, g.dir)
		}
	case it.Filter != "":
		synth := synthPath(parent, it.Text)
		slug := it.Slug
		if slug == "" {
			slug = synth
		}
		e = manifest.NewGallery(it.Text, synth, tb.claim(slug, synth))
		e.Hidden = it.Hidden
		e.Filter = it.Filter
		e.Content = tb.contentFor(e, "")
		tb.galleries++
	default:
		if it.Slug != "" {
			tb.s.logger.Warn("Navigation item references unknown gallery", logfields.Slug(it.Slug))
		}
		e = manifest.NewBranch(it.Text, synthPath(parent, it.Text))
		e.Hidden = it.Hidden
	}

	for _, child := range it.Children {
		e.Children = append(e.Children, tb.convert(child, e.Path))
	}
	return e
}

func (tb *treeBuilder) galleryEntry(text string, g *gallery) *manifest.Entry {
	e := manifest.NewGallery(text, g.dir, g.slug)
	e.Description = g.page.Description
	e.Date = g.page.Date
	e.Featured = g.page.Featured
	e.Hidden = g.page.Hidden
	e.Template = g.page.Template
	e.Filter = g.page.Filter
	e.Sort = g.page.Sort
	if len(g.page.DataSources) > 0 {
		e.DataSources = make(map[string]string, len(g.page.DataSources))
		for name, p := range g.page.DataSources {
			e.DataSources[name] = resolveRel(g.dir, p)
		}
	}
	e.Content = tb.contentFor(e, g.dir)
	if g.page.Cover != "" {
		e.Cover = resolveRel(g.dir, g.page.Cover)
	} else {
		for _, c := range e.Content {
			if c.Image != nil && c.Image.Error == "" {
				e.Cover = c.Image.SourcePath
				break
			}
		}
	}
	tb.galleries++
	return e
}

// contentFor lists a gallery's content. Filtered galleries select from every
// image in the site; a filter with its own sort keeps the query order.
func (tb *treeBuilder) contentFor(e *manifest.Entry, dir string) []manifest.GalleryContent {
	spec := tb.sortSpec.Override(e.Sort)
	if e.Filter != "" {
		q, err := query.ParseQuery(e.Filter)
		if err == nil {
			items := q.Apply(tb.all)
			if q.HasSort() {
				return items
			}
			if e.Path == dir {
				items = append(items, tb.markdown[dir]...)
			}
			content.Sort(items, spec)
			return items
		}
		tb.s.logger.Warn("Invalid gallery filter, using directory content",
			logfields.Gallery(e.Path), slog.String("filter", e.Filter), logfields.Error(err))
	}
	if e.Path != dir {
		return nil
	}
	items := make([]manifest.GalleryContent, 0, len(tb.images[dir])+len(tb.markdown[dir]))
	items = append(items, tb.images[dir]...)
	items = append(items, tb.markdown[dir]...)
	content.Sort(items, spec)
	return items
}

// synthPath gives nodes without a directory a path derived from their text.
func synthPath(parent, text string) string {
	seg := navigation.Slugify(text)
	if seg == "" {
		seg = "section"
	}
	return path.Join(parent, seg)
}

// resolveRel makes a gallery-relative reference source-relative. Absolute
// (leading "/") references are taken from the source root.
func resolveRel(dir, ref string) string {
	ref = filepath.ToSlash(strings.TrimSpace(ref))
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/")
	}
	return strings.TrimPrefix(path.Join(dir, ref), "/")
}

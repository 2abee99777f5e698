// Package sitemodel projects the persisted site tree into the shapes the
// renderer consumes: a gallery list, a navigation menu and a flat image list.
// The tree stays the single source of truth.
package sitemodel

import "git.home.luguber.info/inful/photobuilder/internal/manifest"

// Gallery is one page of the site.
type Gallery struct {
	Entry  *manifest.Entry
	Parent *Gallery
	// Depth is 0 for the home gallery.
	Depth int
}

func (g *Gallery) Slug() string  { return g.Entry.Slug }
func (g *Gallery) Title() string { return g.Entry.Text }
func (g *Gallery) IsHome() bool  { return g.Parent == nil && g.Entry.Path == "" }

// Images returns the gallery's image content in order.
func (g *Gallery) Images() []*manifest.ImageContent {
	var out []*manifest.ImageContent
	for _, c := range g.Entry.Content {
		if c.Image != nil {
			out = append(out, c.Image)
		}
	}
	return out
}

// NavItem is a visible menu entry. Slug is empty for branches.
type NavItem struct {
	Text     string
	Slug     string
	Children []NavItem
}

// IsBranch reports whether the item only groups children.
func (n NavItem) IsBranch() bool { return n.Slug == "" }

// Site is the reconstructed model.
type Site struct {
	Home       *Gallery
	Galleries  []*Gallery
	Navigation []NavItem
	// Images lists every image once, in gallery then content order.
	Images []*manifest.ImageContent
}

// Reconstruct walks root depth-first. A nil root yields an empty site.
func Reconstruct(root *manifest.Entry) *Site {
	site := &Site{}
	if root == nil {
		return site
	}
	site.Home = &Gallery{Entry: root}
	site.Galleries = append(site.Galleries, site.Home)
	collectGalleries(site, root, site.Home, 1)
	site.Navigation = navigation(root.Children)

	seen := map[string]bool{}
	for _, g := range site.Galleries {
		for _, img := range g.Images() {
			if seen[img.SourcePath] {
				continue
			}
			seen[img.SourcePath] = true
			site.Images = append(site.Images, img)
		}
	}
	return site
}

// collectGalleries adds every gallery below e. Branches are traversed but not
// listed; the nearest gallery ancestor becomes the parent.
func collectGalleries(site *Site, e *manifest.Entry, parent *Gallery, depth int) {
	for _, child := range e.Children {
		next := parent
		if child.Kind == manifest.KindGallery {
			g := &Gallery{Entry: child, Parent: parent, Depth: depth}
			site.Galleries = append(site.Galleries, g)
			next = g
		}
		collectGalleries(site, child, next, depth+1)
	}
}

// navigation drops hidden nodes together with their subtrees.
func navigation(entries []*manifest.Entry) []NavItem {
	var out []NavItem
	for _, e := range entries {
		if e.Hidden {
			continue
		}
		item := NavItem{Text: e.Text, Children: navigation(e.Children)}
		if e.IsGallery() {
			item.Slug = e.Slug
		}
		out = append(out, item)
	}
	return out
}

// Find returns the gallery with slug, or nil.
func (s *Site) Find(slug string) *Gallery {
	for _, g := range s.Galleries {
		if g.Entry.Slug == slug {
			return g
		}
	}
	return nil
}

// Breadcrumbs returns the gallery chain from home to g.
func (g *Gallery) Breadcrumbs() []*Gallery {
	var chain []*Gallery
	for cur := g; cur != nil; cur = cur.Parent {
		chain = append([]*Gallery{cur}, chain...)
	}
	return chain
}

// Package navigation builds the site menu, either from an explicit
// _navigation.yaml in the source root or from the directory tree.
package navigation

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/photobuilder/internal/content"
	"git.home.luguber.info/inful/photobuilder/internal/frontmatter"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
)

// FileName is the optional explicit menu definition in the source root.
const FileName = "_navigation.yaml"

// Item is one menu entry. An empty Slug marks a branch that only groups its
// children, unless Filter is set.
type Item struct {
	Text     string `yaml:"text"`
	Slug     string `yaml:"slug,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Hidden   bool   `yaml:"hidden,omitempty"`
	Filter   string `yaml:"filter,omitempty"`
	Children []Item `yaml:"children,omitempty"`
}

// Builder produces the navigation tree for a source directory.
type Builder interface {
	Build(sourcePath string) ([]Item, error)
}

// FSBuilder reads navigation from the filesystem.
type FSBuilder struct {
	logger *slog.Logger
}

// NewBuilder returns a filesystem navigation builder.
func NewBuilder(logger *slog.Logger) *FSBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSBuilder{logger: logger}
}

// Build is shorthand for NewBuilder(nil).Build.
func Build(sourcePath string) ([]Item, error) {
	return NewBuilder(nil).Build(sourcePath)
}

func (b *FSBuilder) Build(sourcePath string) ([]Item, error) {
	data, err := os.ReadFile(filepath.Join(sourcePath, FileName))
	switch {
	case err == nil:
		return b.fromFile(sourcePath, data)
	case errors.Is(err, fs.ErrNotExist):
		return b.fromDirectory(sourcePath, "")
	default:
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}
}

func (b *FSBuilder) fromFile(sourcePath string, data []byte) ([]Item, error) {
	var items []Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	if err := b.resolve(sourcePath, items, "items"); err != nil {
		return nil, err
	}
	b.logger.Debug("Navigation loaded from file", logfields.Count(len(items)))
	return items, nil
}

// resolve fills in text and slug for items that only name a directory.
func (b *FSBuilder) resolve(sourcePath string, items []Item, at string) error {
	for i := range items {
		it := &items[i]
		where := fmt.Sprintf("%s[%d]", at, i)
		it.Path = strings.Trim(filepath.ToSlash(it.Path), "/")
		if it.Text == "" && it.Path == "" {
			return fmt.Errorf("%s %s: text or path is required", FileName, where)
		}
		if it.Path != "" {
			page, _ := b.readIndex(sourcePath, it.Path)
			if it.Text == "" {
				it.Text = labelFor(it.Path, page)
			}
			if it.Slug == "" && hasGalleryContent(filepath.Join(sourcePath, filepath.FromSlash(it.Path))) {
				it.Slug = slugFor(it.Path, page)
			}
		}
		if err := b.resolve(sourcePath, it.Children, where+".children"); err != nil {
			return err
		}
	}
	return nil
}

type ordered struct {
	order int
	name  string
	item  Item
}

func (b *FSBuilder) fromDirectory(sourcePath, rel string) ([]Item, error) {
	dir := filepath.Join(sourcePath, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var rows []ordered
	for _, e := range entries {
		if !e.IsDir() || content.IsHidden(e.Name()) {
			continue
		}
		childRel := path.Join(rel, e.Name())
		children, err := b.fromDirectory(sourcePath, childRel)
		if err != nil {
			return nil, err
		}
		page, hasIndex := b.readIndex(sourcePath, childRel)
		isGallery := hasGalleryContent(filepath.Join(dir, e.Name()))
		if !isGallery && len(children) == 0 && !hasIndex {
			continue
		}

		order, _ := StripOrder(e.Name())
		if page.Weight != 0 {
			order = page.Weight
		}
		item := Item{
			Text:     labelFor(childRel, page),
			Path:     childRel,
			Hidden:   page.Hidden,
			Filter:   page.Filter,
			Children: children,
		}
		if isGallery {
			item.Slug = slugFor(childRel, page)
		}
		rows = append(rows, ordered{order: order, name: strings.ToLower(e.Name()), item: item})
	}

	slices.SortFunc(rows, func(x, y ordered) int {
		if x.order != y.order {
			if x.order < y.order {
				return -1
			}
			return 1
		}
		return strings.Compare(x.name, y.name)
	})
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = r.item
	}
	return items, nil
}

func (b *FSBuilder) readIndex(sourcePath, rel string) (frontmatter.Page, bool) {
	p := filepath.Join(sourcePath, filepath.FromSlash(rel), content.IndexFile)
	data, err := os.ReadFile(p)
	if err != nil {
		return frontmatter.Page{}, false
	}
	page, _, err := frontmatter.DecodePage(data)
	if err != nil {
		b.logger.Warn("Ignoring unreadable gallery index", logfields.Path(p), logfields.Error(err))
		return frontmatter.Page{}, true
	}
	return page, true
}

// GallerySlug returns the slug a gallery directory is published under: the
// index frontmatter slug when set, otherwise the path-derived one.
func GallerySlug(rel string, page frontmatter.Page) string { return slugFor(rel, page) }

func slugFor(rel string, page frontmatter.Page) string {
	if s := strings.Trim(page.Slug, "/ "); s != "" {
		return s
	}
	return SlugForPath(rel)
}

func labelFor(rel string, page frontmatter.Page) string {
	if page.Title != "" {
		return page.Title
	}
	_, label := StripOrder(path.Base(rel))
	return label
}

// hasGalleryContent reports whether dir directly holds images, markdown or a
// gallery index.
func hasGalleryContent(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() || content.IsHidden(e.Name()) {
			continue
		}
		name := e.Name()
		if name == content.IndexFile || content.IsImageFile(name) || content.IsMarkdownFile(name) {
			return true
		}
	}
	return false
}

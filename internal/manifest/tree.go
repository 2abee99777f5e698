package manifest

import (
	"slices"
	"time"
)

// NodeKind tags a tree node as a page-producing gallery or a pure navigation branch.
type NodeKind string

const (
	KindGallery NodeKind = "gallery"
	KindBranch  NodeKind = "branch"
)

// Entry is one node of the unified site tree. The root (Path == "") is always a
// gallery and represents the home page. Slug is only meaningful for galleries.
type Entry struct {
	Kind        NodeKind          `json:"kind"`
	Text        string            `json:"text"`
	Path        string            `json:"path"`
	Slug        string            `json:"slug,omitempty"`
	Description string            `json:"description,omitempty"`
	Cover       string            `json:"cover,omitempty"`
	Date        *time.Time        `json:"date,omitempty"`
	Featured    bool              `json:"featured,omitempty"`
	Hidden      bool              `json:"hidden,omitempty"`
	Template    string            `json:"template,omitempty"`
	Filter      string            `json:"filter,omitempty"`
	Sort        string            `json:"sort,omitempty"`
	DataSources map[string]string `json:"dataSources,omitempty"`
	Content     []GalleryContent  `json:"content,omitempty"`
	Children    []*Entry          `json:"children,omitempty"`
}

// NewGallery creates a gallery node.
func NewGallery(text, path, slug string) *Entry {
	return &Entry{Kind: KindGallery, Text: text, Path: path, Slug: slug}
}

// NewBranch creates a navigation-only node.
func NewBranch(text, path string) *Entry {
	return &Entry{Kind: KindBranch, Text: text, Path: path}
}

// IsGallery reports whether the node renders its own page.
func (e *Entry) IsGallery() bool {
	return e != nil && e.Kind == KindGallery
}

// Walk visits e and its descendants depth-first, parents before children.
// Returning false from fn skips the node's children.
func (e *Entry) Walk(fn func(*Entry) bool) {
	if e == nil {
		return
	}
	if !fn(e) {
		return
	}
	for _, child := range e.Children {
		child.Walk(fn)
	}
}

// Images returns every image reachable from e, in tree and content order,
// including duplicates contributed by filter galleries.
func (e *Entry) Images() []*ImageContent {
	var out []*ImageContent
	e.Walk(func(n *Entry) bool {
		for _, c := range n.Content {
			if c.Image != nil {
				out = append(out, c.Image)
			}
		}
		return true
	})
	return out
}

// ImageKeys returns the sorted, distinct source paths of every image
// reachable from e. These are the manifest keys that are not orphans.
func (e *Entry) ImageKeys() []string {
	seen := map[string]bool{}
	var keys []string
	for _, img := range e.Images() {
		if !seen[img.SourcePath] {
			seen[img.SourcePath] = true
			keys = append(keys, img.SourcePath)
		}
	}
	slices.Sort(keys)
	return keys
}

// GalleryContent is a tagged union: exactly one of Image or Markdown is set.
type GalleryContent struct {
	Image    *ImageContent    `json:"image,omitempty"`
	Markdown *MarkdownContent `json:"markdown,omitempty"`
}

// Filename returns the file name of whichever variant is set.
func (c GalleryContent) Filename() string {
	switch {
	case c.Image != nil:
		return c.Image.Filename
	case c.Markdown != nil:
		return c.Markdown.Filename
	default:
		return ""
	}
}

// SourcePath returns the normalized source path of whichever variant is set.
func (c GalleryContent) SourcePath() string {
	switch {
	case c.Image != nil:
		return c.Image.SourcePath
	case c.Markdown != nil:
		return c.Markdown.SourcePath
	default:
		return ""
	}
}

// ImageContent describes one source photo. SourcePath is the manifest key.
type ImageContent struct {
	Filename    string     `json:"filename"`
	SourcePath  string     `json:"sourcePath"`
	FileSize    int64      `json:"fileSize"`
	Hash        string     `json:"hash,omitempty"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Sizes       []int      `json:"sizes,omitempty"`
	DateTaken   *time.Time `json:"dateTaken,omitempty"`
	Exif        *Exif      `json:"exif,omitempty"`
	ProcessedAt time.Time  `json:"processedAt,omitzero"`
	// Error records a metadata extraction failure. Such images stay in the
	// tree with zero geometry and are never handed to the variant pipeline.
	Error string `json:"error,omitempty"`
}

// MarkdownContent describes a markdown file. Its body is read at render time.
type MarkdownContent struct {
	Filename   string `json:"filename"`
	SourcePath string `json:"sourcePath"`
	FileSize   int64  `json:"fileSize"`
	Hash       string `json:"hash"`
}

// Exif is the decoded camera metadata of an image. Raw holds every decoded tag
// as a string, keyed by tag name.
type Exif struct {
	Make         string            `json:"make,omitempty"`
	Model        string            `json:"model,omitempty"`
	LensModel    string            `json:"lensModel,omitempty"`
	FocalLength  float64           `json:"focalLength,omitempty"`
	FNumber      float64           `json:"fNumber,omitempty"`
	ExposureTime string            `json:"exposureTime,omitempty"`
	ISO          int               `json:"iso,omitempty"`
	Rating       int               `json:"rating,omitempty"`
	DateTaken    *time.Time        `json:"dateTaken,omitempty"`
	Raw          map[string]string `json:"raw,omitempty"`
}

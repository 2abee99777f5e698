package content

import (
	"path/filepath"
	"strings"
)

// IndexFile holds a gallery's frontmatter and intro text.
const IndexFile = "_index.md"

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// IsMarkdownFile reports whether name is a content markdown file. The gallery
// index file is not content.
func IsMarkdownFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md") && name != IndexFile
}

// IsHidden reports whether a file or directory is excluded from the site.
// Names starting with "." or "_" are hidden, except the gallery index file.
func IsHidden(name string) bool {
	if name == IndexFile {
		return false
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
)

// pagePath maps a gallery slug to its index.html under outputDir. The home
// gallery has an empty slug.
func pagePath(outputDir, slug string) (string, error) {
	if slug == "" {
		return filepath.Join(outputDir, "index.html"), nil
	}
	clean := filepath.Clean(filepath.FromSlash(slug))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("slug %q escapes the output directory", slug)
	}
	return filepath.Join(outputDir, clean, "index.html"), nil
}

// writePage replaces path atomically.
func writePage(path string, content []byte) error {
	if path == "" {
		return errors.InternalError("output path is required").Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileSystemError("create output directory").WithCause(err).
			WithContext("path", filepath.Dir(path)).Build()
	}
	tmp := path + ".tmp"
	// #nosec G306 -- published pages are world-readable.
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return errors.FileSystemError("write page").WithCause(err).WithContext("path", tmp).Build()
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.FileSystemError("write page").WithCause(err).WithContext("path", path).Build()
	}
	return nil
}

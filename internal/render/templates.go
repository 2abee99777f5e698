package render

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// OverrideDir is the source subdirectory whose *.html files replace or extend
// the built-in templates. Its leading underscore keeps it out of the scan.
const OverrideDir = "_templates"

const (
	homeTemplate    = "home.html"
	galleryTemplate = "gallery.html"
)

//go:embed templates/*.html
var builtin embed.FS

// loadTemplates parses the built-in set and then every override file, so a
// same-named file or a same-named {{define}} block wins.
func loadTemplates(sourceDir string, funcs template.FuncMap) (*template.Template, []string, error) {
	tpl, err := template.New("site").Funcs(funcs).Option("missingkey=zero").ParseFS(builtin, "templates/*.html")
	if err != nil {
		return nil, nil, fmt.Errorf("parse built-in templates: %w", err)
	}

	dir := filepath.Join(sourceDir, OverrideDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return tpl, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read template overrides: %w", err)
	}

	var overrides []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".html") {
			continue
		}
		overrides = append(overrides, e.Name())
	}
	sort.Strings(overrides)

	for _, name := range overrides {
		// #nosec G304 -- name comes from listing the override directory.
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("read template %s: %w", name, err)
		}
		if _, err := tpl.New(name).Parse(string(body)); err != nil {
			return nil, nil, fmt.Errorf("parse template %s: %w", name, err)
		}
	}
	return tpl, overrides, nil
}

// templateFor picks the page template. A gallery naming a template that does
// not exist falls back to the default and reports false.
func templateFor(tpl *template.Template, name string, home bool) (string, bool) {
	def := galleryTemplate
	if home {
		def = homeTemplate
	}
	if name == "" {
		return def, true
	}
	if !strings.HasSuffix(name, ".html") {
		name += ".html"
	}
	if tpl.Lookup(name) == nil {
		return def, false
	}
	return name, true
}

// urlFuncs builds the helpers templates use for links. Without a base URL the
// site is root-relative.
func urlFuncs(baseURL string) template.FuncMap {
	rel := relURL(baseURL)
	return template.FuncMap{
		"relURL":     rel,
		"galleryURL": galleryURL(rel),
	}
}

func galleryURL(rel func(string) string) func(string) string {
	return func(slug string) string {
		if slug == "" {
			return rel("")
		}
		return rel(slug + "/")
	}
}

func relURL(baseURL string) func(string) string {
	base := strings.TrimSuffix(baseURL, "/")
	return func(p string) string {
		return base + "/" + strings.TrimPrefix(p, "/")
	}
}

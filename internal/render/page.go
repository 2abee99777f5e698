package render

import (
	"html/template"
	"path"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
	"git.home.luguber.info/inful/photobuilder/internal/sitemodel"
	"git.home.luguber.info/inful/photobuilder/internal/variants"
)

// PageData is the value every page template executes against.
type PageData struct {
	Site        config.SiteConfig
	Gallery     *sitemodel.Gallery
	Title       string
	Intro       template.HTML
	Items       []Item
	Children    []Card
	Featured    []Card
	Navigation  []sitemodel.NavItem
	Breadcrumbs []*sitemodel.Gallery
	Data        map[string]any
	Generated   time.Time
}

// Item is one rendered piece of gallery content; exactly one of Image or HTML
// is set.
type Item struct {
	Image *ImageView
	HTML  template.HTML
	Title string
}

// ImageView carries the URLs of an image's primary-format variants.
type ImageView struct {
	Filename   string
	SourcePath string
	Alt        string
	Src        string
	SrcSet     string
	Width      int
	Height     int
	DateTaken  *time.Time
	Exif       *manifest.Exif
	// Sources lists one srcset per extra format, keyed by format.
	Sources map[string]string
}

// Card links to another gallery.
type Card struct {
	Title string
	URL   string
	Cover *ImageView
}

// imageView returns nil for images that have no variants.
func imageView(img *manifest.ImageContent, formats []string, rel func(string) string) *ImageView {
	if img == nil || img.Error != "" || len(img.Sizes) == 0 || len(formats) == 0 {
		return nil
	}
	largest := img.Sizes[len(img.Sizes)-1]
	height := img.Height
	if img.Width > 0 {
		height = img.Height * largest / img.Width
	}
	v := &ImageView{
		Filename:   img.Filename,
		SourcePath: img.SourcePath,
		Alt:        strings.TrimSuffix(img.Filename, path.Ext(img.Filename)),
		Src:        rel(variants.URL(img.Filename, largest, formats[0])),
		SrcSet:     srcSet(img, formats[0], rel),
		Width:      largest,
		Height:     height,
		DateTaken:  img.DateTaken,
		Exif:       img.Exif,
	}
	if len(formats) > 1 {
		v.Sources = make(map[string]string, len(formats)-1)
		for _, f := range formats[1:] {
			v.Sources[f] = srcSet(img, f, rel)
		}
	}
	return v
}

func srcSet(img *manifest.ImageContent, format string, rel func(string) string) string {
	parts := make([]string, 0, len(img.Sizes))
	for _, w := range img.Sizes {
		parts = append(parts, rel(variants.URL(img.Filename, w, format))+" "+strconv.Itoa(w)+"w")
	}
	return strings.Join(parts, ", ")
}

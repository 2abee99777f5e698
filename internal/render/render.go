// Package render writes the HTML site from the persisted tree. Markdown is
// converted at render time, so a prose edit only needs a render.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/content"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
	"git.home.luguber.info/inful/photobuilder/internal/markdown"
	"git.home.luguber.info/inful/photobuilder/internal/progress"
	"git.home.luguber.info/inful/photobuilder/internal/sitemodel"
	"git.home.luguber.info/inful/photobuilder/internal/variants"
)

// StageName labels render results, logs and metrics.
const StageName = "render"

// Stats summarizes one render.
type Stats struct {
	Pages             int `json:"pages"`
	Images            int `json:"images"`
	Markdown          int `json:"markdown"`
	MarkdownFailures  int `json:"markdownFailures"`
	DataSources       int `json:"dataSources"`
	TemplateOverrides int `json:"templateOverrides"`
}

// Result is the outcome of a render; only cancellation is returned as an error.
type Result struct {
	Success bool
	Message string
	Stats   Stats
}

// Renderer writes pages for one configuration snapshot.
type Renderer struct {
	snap   config.Snapshot
	store  *manifest.Store
	conv   *markdown.Converter
	sink   progress.Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

func WithProgress(p progress.Sink) Option { return func(r *Renderer) { r.sink = progress.OrNop(p) } }

func WithLogger(l *slog.Logger) Option { return func(r *Renderer) { r.logger = l } }

func WithClock(now func() time.Time) Option { return func(r *Renderer) { r.now = now } }

// New returns a renderer.
func New(snap config.Snapshot, store *manifest.Store, opts ...Option) *Renderer {
	r := &Renderer{
		snap:   snap,
		store:  store,
		conv:   markdown.NewConverter(),
		sink:   progress.Discard,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run renders every gallery page.
func (r *Renderer) Run(ctx context.Context) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Render panicked", slog.Any("panic", p), slog.String("stack", string(debug.Stack())))
			res, err = &Result{Message: fmt.Sprintf("render failed: %v", p)}, nil
		}
	}()

	res, err = r.run(ctx)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	r.logger.Error("Render failed", logfields.Stage(StageName), logfields.Error(err))
	if res == nil {
		res = &Result{}
	}
	res.Success = false
	res.Message = err.Error()
	return res, nil
}

func (r *Renderer) run(ctx context.Context) (*Result, error) {
	res := &Result{}
	m := r.store.Load()
	if m.Root == nil {
		res.Message = variants.ErrNoManifest.Error()
		return res, nil
	}

	site := sitemodel.Reconstruct(m.Root)
	tpl, overrides, err := loadTemplates(r.snap.SourceDir, urlFuncs(r.snap.Site.BaseURL))
	if err != nil {
		return res, err
	}
	res.Stats.TemplateOverrides = len(overrides)
	if len(overrides) > 0 {
		r.logger.Debug("Template overrides loaded", slog.Any("templates", overrides))
	}

	pb := &pageBuilder{
		r:      r,
		site:   site,
		rel:    relURL(r.snap.Site.BaseURL),
		byPath: make(map[string]*manifest.ImageContent, len(site.Images)),
		stats:  &res.Stats,
		now:    r.now().UTC(),
	}
	for _, img := range site.Images {
		pb.byPath[img.SourcePath] = img
	}

	total := len(site.Galleries)
	for i, g := range site.Galleries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if owner := site.Find(g.Slug()); owner != g {
			return res, fmt.Errorf("galleries %q and %q both publish to %q; rescan to assign distinct slugs",
				owner.Entry.Path, g.Entry.Path, galleryURL(pb.rel)(g.Slug()))
		}
		if err := r.renderGallery(tpl, pb, g); err != nil {
			return res, err
		}
		res.Stats.Pages++
		r.sink.Report(progress.Snapshot{
			Stage: StageName, Status: "rendering", Current: g.Slug(),
			Done: i + 1, Total: total,
		})
	}

	res.Success = true
	res.Message = fmt.Sprintf("rendered %d pages", res.Stats.Pages)
	if res.Stats.MarkdownFailures > 0 {
		res.Message += fmt.Sprintf(" (%d markdown files skipped)", res.Stats.MarkdownFailures)
	}
	return res, nil
}

func (r *Renderer) renderGallery(tpl *template.Template, pb *pageBuilder, g *sitemodel.Gallery) error {
	name, ok := templateFor(tpl, g.Entry.Template, g.IsHome())
	if !ok {
		r.logger.Warn("Unknown gallery template, using default",
			logfields.Slug(g.Slug()), slog.String("template", g.Entry.Template))
	}

	data := pb.page(g)
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render template %s for %q: %w", name, g.Slug(), err)
	}

	out, err := pagePath(r.snap.OutputDir, g.Slug())
	if err != nil {
		return err
	}
	if err := writePage(out, buf.Bytes()); err != nil {
		return err
	}
	r.logger.Debug("Page written", logfields.Slug(g.Slug()), logfields.Path(out), slog.String("template", name))
	return nil
}

// pageBuilder assembles PageData for each gallery of one site.
type pageBuilder struct {
	r      *Renderer
	site   *sitemodel.Site
	rel    func(string) string
	byPath map[string]*manifest.ImageContent
	stats  *Stats
	now    time.Time
}

func (pb *pageBuilder) page(g *sitemodel.Gallery) *PageData {
	snap := pb.r.snap
	data := &PageData{
		Site:        snap.Site,
		Gallery:     g,
		Title:       g.Title(),
		Navigation:  pb.site.Navigation,
		Breadcrumbs: g.Breadcrumbs(),
		Data:        pb.dataSources(g),
		Generated:   pb.now,
	}
	if data.Title == "" {
		data.Title = snap.Site.Title
	}
	data.Intro = pb.intro(g)

	for _, c := range g.Entry.Content {
		switch {
		case c.Image != nil:
			if v := imageView(c.Image, snap.Formats, pb.rel); v != nil {
				data.Items = append(data.Items, Item{Image: v, Title: v.Alt})
				pb.stats.Images++
			}
		case c.Markdown != nil:
			if item, ok := pb.markdown(c.Markdown); ok {
				data.Items = append(data.Items, item)
			}
		}
	}

	for _, other := range pb.site.Galleries {
		if other.Parent == g && !other.Entry.Hidden {
			data.Children = append(data.Children, pb.card(other))
		}
		if g.IsHome() && other.Entry.Featured && other != g {
			data.Featured = append(data.Featured, pb.card(other))
		}
	}
	return data
}

func (pb *pageBuilder) card(g *sitemodel.Gallery) Card {
	return Card{
		Title: g.Title(),
		URL:   galleryURL(pb.rel)(g.Slug()),
		Cover: imageView(pb.byPath[g.Entry.Cover], pb.r.snap.Formats, pb.rel),
	}
}

// intro renders the gallery's own _index.md body, if the gallery is backed by
// a directory that has one.
func (pb *pageBuilder) intro(g *sitemodel.Gallery) template.HTML {
	p := filepath.Join(pb.r.snap.SourceDir, filepath.FromSlash(g.Entry.Path), content.IndexFile)
	// #nosec G304 -- path is built from the scanned tree under the source directory.
	src, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	doc, err := pb.r.conv.Convert(src)
	if err != nil {
		pb.r.logger.Warn("Failed to render gallery intro", logfields.Path(p), logfields.Error(err))
		return ""
	}
	// #nosec G203 -- markdown is authored by the site owner.
	return template.HTML(doc.HTML)
}

func (pb *pageBuilder) markdown(md *manifest.MarkdownContent) (Item, bool) {
	p := filepath.Join(pb.r.snap.SourceDir, filepath.FromSlash(md.SourcePath))
	// #nosec G304 -- path comes from the scanned tree.
	src, err := os.ReadFile(p)
	if err == nil {
		var doc markdown.Document
		if doc, err = pb.r.conv.Convert(src); err == nil {
			pb.stats.Markdown++
			// #nosec G203 -- markdown is authored by the site owner.
			return Item{HTML: template.HTML(doc.HTML), Title: doc.Title}, true
		}
	}
	pb.stats.MarkdownFailures++
	pb.r.logger.Warn("Skipping markdown file", logfields.Path(md.SourcePath), logfields.Error(err))
	return Item{}, false
}

// dataSources decodes each configured JSON file. Unreadable files are logged
// and left out.
func (pb *pageBuilder) dataSources(g *sitemodel.Gallery) map[string]any {
	if len(g.Entry.DataSources) == 0 {
		return nil
	}
	out := make(map[string]any, len(g.Entry.DataSources))
	for name, rel := range g.Entry.DataSources {
		p := filepath.Join(pb.r.snap.SourceDir, filepath.FromSlash(rel))
		// #nosec G304 -- data sources are resolved under the source directory.
		raw, err := os.ReadFile(p)
		if err != nil {
			pb.r.logger.Warn("Data source unreadable", logfields.Slug(g.Slug()), logfields.Path(rel), logfields.Error(err))
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			pb.r.logger.Warn("Data source is not valid JSON", logfields.Slug(g.Slug()), logfields.Path(rel), logfields.Error(err))
			continue
		}
		out[name] = v
		pb.stats.DataSources++
	}
	return out
}

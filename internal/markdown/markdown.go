// Package markdown converts gallery markdown to HTML with goldmark.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/photobuilder/internal/frontmatter"
)

// Document is a converted markdown file.
type Document struct {
	// Title is the first level-one heading, or empty.
	Title string
	HTML  string
	Meta  map[string]any
}

// Converter renders markdown. It is safe for concurrent use.
type Converter struct {
	md goldmark.Markdown
}

// NewConverter returns a converter with GitHub-flavoured extensions and raw
// HTML passthrough.
func NewConverter() *Converter {
	return &Converter{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Typographer),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)}
}

// Convert strips frontmatter from source and renders the body.
func (c *Converter) Convert(source []byte) (Document, error) {
	fm, body, had, err := frontmatter.Split(source)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Meta: map[string]any{}}
	if had {
		if doc.Meta, err = frontmatter.ParseYAML(fm); err != nil {
			return Document{}, fmt.Errorf("parse frontmatter: %w", err)
		}
	}

	root := c.md.Parser().Parse(text.NewReader(body))
	doc.Title = firstHeading(root, body)
	if t, ok := doc.Meta["title"].(string); ok && t != "" {
		doc.Title = t
	}

	var buf bytes.Buffer
	if err := c.md.Renderer().Render(&buf, body, root); err != nil {
		return Document{}, fmt.Errorf("render markdown: %w", err)
	}
	doc.HTML = buf.String()
	return doc, nil
}

func firstHeading(root gmast.Node, source []byte) string {
	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		h, ok := n.(*gmast.Heading)
		if !ok || h.Level != 1 {
			return gmast.WalkContinue, nil
		}
		title = strings.TrimSpace(plainText(h, source))
		return gmast.WalkStop, nil
	})
	return title
}

func plainText(n gmast.Node, source []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*gmast.Text); ok {
			sb.Write(t.Segment.Value(source))
			continue
		}
		sb.WriteString(plainText(c, source))
	}
	return sb.String()
}

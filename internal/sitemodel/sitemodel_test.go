package sitemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/photobuilder/internal/manifest"
)

func img(key string) manifest.GalleryContent {
	return manifest.GalleryContent{Image: &manifest.ImageContent{Filename: key, SourcePath: key}}
}

func tree() *manifest.Entry {
	root := manifest.NewGallery("Home", "", "")
	root.Content = []manifest.GalleryContent{img("h.jpg")}

	land := manifest.NewGallery("Landscapes", "land", "landscapes")
	land.Content = []manifest.GalleryContent{img("land/a.jpg"), img("land/b.jpg"),
		{Markdown: &manifest.MarkdownContent{Filename: "x.md", SourcePath: "land/x.md"}}}

	travel := manifest.NewBranch("Travel", "travel")
	norway := manifest.NewGallery("Norway", "travel/norway", "travel/norway")
	norway.Content = []manifest.GalleryContent{img("travel/norway/f.jpg")}
	secret := manifest.NewGallery("Secret", "travel/secret", "secret")
	secret.Hidden = true
	secret.Children = []*manifest.Entry{manifest.NewGallery("Inner", "travel/secret/inner", "inner")}
	travel.Children = []*manifest.Entry{norway, secret}

	best := manifest.NewGallery("Best", "best", "best")
	best.Filter = "width > 0"
	best.Content = []manifest.GalleryContent{img("travel/norway/f.jpg"), img("land/a.jpg")}

	root.Children = []*manifest.Entry{land, travel, best}
	return root
}

func TestReconstruct_Galleries(t *testing.T) {
	site := Reconstruct(tree())

	var slugs []string
	for _, g := range site.Galleries {
		slugs = append(slugs, g.Slug())
	}
	assert.Equal(t, []string{"", "landscapes", "travel/norway", "secret", "inner", "best"}, slugs)
	assert.True(t, site.Home.IsHome())

	norway := site.Find("travel/norway")
	require.NotNil(t, norway)
	assert.Same(t, site.Home, norway.Parent, "branches are not parents")
	assert.Equal(t, 2, norway.Depth)
	assert.Len(t, norway.Breadcrumbs(), 2)
	assert.Nil(t, site.Find("missing"))
}

func TestReconstruct_NavigationSkipsRootAndHidden(t *testing.T) {
	site := Reconstruct(tree())
	require.Len(t, site.Navigation, 3)
	assert.Equal(t, "Landscapes", site.Navigation[0].Text)

	travel := site.Navigation[1]
	assert.True(t, travel.IsBranch())
	require.Len(t, travel.Children, 1, "hidden subtree dropped")
	assert.Equal(t, "travel/norway", travel.Children[0].Slug)
}

func TestReconstruct_FlatImagesDeduplicated(t *testing.T) {
	site := Reconstruct(tree())
	var keys []string
	for _, i := range site.Images {
		keys = append(keys, i.SourcePath)
	}
	assert.Equal(t, []string{"h.jpg", "land/a.jpg", "land/b.jpg", "travel/norway/f.jpg"}, keys)
}

func TestReconstruct_Nil(t *testing.T) {
	site := Reconstruct(nil)
	assert.Nil(t, site.Home)
	assert.Empty(t, site.Galleries)
}

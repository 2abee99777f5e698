// Package testutil holds helpers shared by tests that need real files on disk.
package testutil

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// WriteJPEG encodes a w x h gradient at path, creating parent directories.
func WriteJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
	require.NoError(t, f.Close())
}

// WriteFile writes body to root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, body string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// Files asserts on a directory tree. Paths are slash-separated and relative
// to the base directory.
type Files struct {
	t    *testing.T
	base string
}

func NewFiles(t *testing.T, base string) *Files {
	return &Files{t: t, base: base}
}

func (f *Files) path(rel string) string {
	return filepath.Join(f.base, filepath.FromSlash(rel))
}

func (f *Files) Exists(rels ...string) *Files {
	f.t.Helper()
	for _, rel := range rels {
		assert.FileExists(f.t, f.path(rel))
	}
	return f
}

func (f *Files) NotExists(rels ...string) *Files {
	f.t.Helper()
	for _, rel := range rels {
		assert.NoFileExists(f.t, f.path(rel))
	}
	return f
}

// Contains checks that rel contains every fragment.
func (f *Files) Contains(rel string, fragments ...string) *Files {
	f.t.Helper()
	data, err := os.ReadFile(f.path(rel))
	if !assert.NoError(f.t, err) {
		return f
	}
	for _, frag := range fragments {
		assert.Contains(f.t, string(data), frag, "in %s", rel)
	}
	return f
}

// CountFiles returns the number of regular files directly in rel.
func (f *Files) CountFiles(rel string) int {
	f.t.Helper()
	entries, err := os.ReadDir(f.path(rel))
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

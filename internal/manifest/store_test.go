package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
)

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())

	m := store.Load()

	require.NotNil(t, m)
	assert.Empty(t, m.Images)
	assert.Nil(t, m.Root)
	assert.False(t, store.Exists())
}

func TestStore_LoadCorruptIsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644))

	m := NewStore(dir).Load()

	require.NotNil(t, m)
	assert.Empty(t, m.Images)
}

func TestStore_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(dir).WithClock(func() time.Time { return fixed })

	m := New()
	m.SetImage("trips/a.jpg", ImageEntry{Hash: "abc", ProcessedAt: fixed})
	m.Meta.ConfigHash = "cfg"
	m.Root = NewGallery("Home", "", "")
	m.Root.Children = []*Entry{NewBranch("Travel", "travel")}

	require.NoError(t, store.Save(m))
	_, err := os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a successful save")

	loaded := store.Load()
	entry, ok := loaded.GetImage("trips/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "abc", entry.Hash)
	assert.True(t, fixed.Equal(entry.ProcessedAt))
	assert.Equal(t, "cfg", loaded.Meta.ConfigHash)
	assert.True(t, fixed.Equal(loaded.Meta.LastUpdated))
	require.NotNil(t, loaded.Root)
	assert.True(t, loaded.Root.IsGallery())
	require.Len(t, loaded.Root.Children, 1)
	assert.Equal(t, KindBranch, loaded.Root.Children[0].Kind)
}

func TestStore_SaveFailureRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory at the manifest path makes the rename fail.
	blocker := filepath.Join(dir, FileName)
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "x"), 0o755))
	store := NewStore(dir)

	err := store.Save(New())

	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryManifest))
	_, statErr := os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

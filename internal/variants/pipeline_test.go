package variants

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/imaging"
	"git.home.luguber.info/inful/photobuilder/internal/imaging/imagingtest"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
	"git.home.luguber.info/inful/photobuilder/internal/progress"
	"git.home.luguber.info/inful/photobuilder/internal/scan"
)

type env struct {
	src   string
	out   string
	snap  config.Snapshot
	store *manifest.Store
	codec *imagingtest.Codec
	ex    *imaging.Exclusive
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Source = filepath.Join(root, "content")
	cfg.Output = filepath.Join(root, "output")
	cfg.CacheDir = filepath.Join(root, ".cache")
	cfg.Images.Workers = 4
	require.NoError(t, os.MkdirAll(cfg.Source, 0o755))
	codec := imagingtest.New()
	return &env{
		src:   cfg.Source,
		out:   cfg.Output,
		snap:  cfg.Snapshot(),
		store: manifest.NewStore(cfg.CacheDir),
		codec: codec,
		ex:    imaging.NewExclusive(codec),
	}
}

func (e *env) image(t *testing.T, rel string, w int) {
	t.Helper()
	p := filepath.Join(e.src, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(rel), 0o600))
	e.codec.Meta[filepath.Base(rel)] = imaging.Metadata{Width: w, Height: w / 2}
}

func (e *env) scan(t *testing.T) {
	t.Helper()
	res, err := scan.New(e.snap, e.store, scan.WithMetadataReader(e.codec)).Run(t.Context())
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
}

func (e *env) process(t *testing.T, force bool, opts ...Option) *Result {
	t.Helper()
	e.codec.Reset()
	res, err := New(e.snap, e.store, append([]Option{WithCodec(e.ex)}, opts...)...).Run(t.Context(), force)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func generatedSources(c *imagingtest.Codec) map[string]int {
	out := map[string]int{}
	for _, v := range c.Variants() {
		out[filepath.Base(v.Src)]++
	}
	return out
}

func TestPipeline_GeneratesAllVariants(t *testing.T) {
	e := newEnv(t)
	e.snap.Formats = []string{"jpg", "png"}
	e.image(t, "a.jpg", 2000)
	e.image(t, "sub/b.jpg", 800)
	e.scan(t)

	res := e.process(t, false)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 2, res.Stats.Processed)
	assert.Equal(t, (4+2)*2, res.Stats.VariantsPlanned)
	assert.Equal(t, 12, res.Stats.VariantsWritten)
	assert.Equal(t, 12, res.Stats.OutputFiles)
	assert.Positive(t, res.Stats.OutputBytes)

	for _, w := range []int{640, 1024, 1920, 2000} {
		assert.FileExists(t, filepath.Join(e.out, "images", "a", fmt.Sprintf("%d.jpg", w)))
		assert.FileExists(t, filepath.Join(e.out, "images", "a", fmt.Sprintf("%d.png", w)))
	}
	assert.FileExists(t, filepath.Join(e.out, "images", "b", "800.png"))
	assert.NoFileExists(t, filepath.Join(e.out, "images", "b", "1024.jpg"))

	m := e.store.Load()
	assert.Equal(t, []string{"a.jpg", "sub/b.jpg"}, m.ImageKeys())
	assert.False(t, m.Meta.LastImagesProcessed.IsZero())
	for _, img := range m.Root.Images() {
		entry, ok := m.GetImage(img.SourcePath)
		require.True(t, ok)
		assert.Equal(t, entry.Hash, img.Hash, "tree node carries the new hash")
		assert.False(t, img.ProcessedAt.IsZero())
	}
}

func TestPipeline_CacheHit(t *testing.T) {
	e := newEnv(t)
	e.image(t, "a.jpg", 1000)
	e.image(t, "b.jpg", 1000)
	e.scan(t)
	require.True(t, e.process(t, false).Success)
	before := e.store.Load()

	e.scan(t)
	res := e.process(t, false)
	require.True(t, res.Success)
	assert.Zero(t, res.Stats.Processed)
	assert.Equal(t, 2, res.Stats.Skipped)
	assert.Empty(t, e.codec.Variants())

	after := e.store.Load()
	assert.Equal(t, before.Images, after.Images)
}

func TestPipeline_CacheMissOnlyTouchedImage(t *testing.T) {
	e := newEnv(t)
	e.image(t, "a.jpg", 1000)
	e.image(t, "b.jpg", 1000)
	e.image(t, "c.jpg", 1000)
	e.scan(t)
	require.True(t, e.process(t, false).Success)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(e.src, "b.jpg"), later, later))
	e.scan(t)

	res := e.process(t, false)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.Processed)
	assert.Equal(t, 2, res.Stats.Skipped)
	assert.Equal(t, map[string]int{"b.jpg": 2}, generatedSources(e.codec))
}

func TestPipeline_ConfigChangeReprocessesEverything(t *testing.T) {
	e := newEnv(t)
	e.image(t, "a.jpg", 3000)
	e.image(t, "b.jpg", 3000)
	e.scan(t)
	require.True(t, e.process(t, false).Success)

	e.snap.Formats = []string{"jpg", "gif"}
	res := e.process(t, false)
	require.True(t, res.Success)
	assert.True(t, res.Stats.CacheInvalidated)
	assert.Equal(t, 2, res.Stats.Processed)
	assert.Zero(t, res.Stats.Skipped)
	assert.Equal(t, manifest.ConfigHash(e.snap.Sizes, e.snap.Formats, e.snap.Quality), e.store.Load().Meta.ConfigHash)

	e.snap.Sizes = []int{320}
	e.scan(t)
	res = e.process(t, false)
	assert.Equal(t, 2, res.Stats.Processed)
}

func TestPipeline_RegeneratesWhenOutputDeleted(t *testing.T) {
	e := newEnv(t)
	e.image(t, "c.jpg", 1000)
	e.image(t, "d.jpg", 1000)
	e.scan(t)
	require.True(t, e.process(t, false).Success)

	m := e.store.Load()
	entry, ok := m.GetImage("c.jpg")
	require.True(t, ok)
	require.NoError(t, os.Remove(filepath.Join(e.out, "images", "c", "640.jpg")))

	res := e.process(t, false)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.Processed)
	assert.Equal(t, map[string]int{"c.jpg": 2}, generatedSources(e.codec))
	assert.FileExists(t, filepath.Join(e.out, "images", "c", "640.jpg"))

	again, _ := e.store.Load().GetImage("c.jpg")
	assert.Equal(t, entry.Hash, again.Hash)
}

func TestPipeline_RegeneratesWhenLaterVariantMissing(t *testing.T) {
	e := newEnv(t)
	e.image(t, "c.jpg", 1000)
	e.scan(t)
	require.True(t, e.process(t, false).Success)

	require.NoError(t, os.Remove(filepath.Join(e.out, "images", "c", "1000.jpg")))
	res := e.process(t, false)
	assert.Equal(t, 1, res.Stats.Processed)
}

func TestPipeline_Force(t *testing.T) {
	e := newEnv(t)
	e.image(t, "a.jpg", 1000)
	e.scan(t)
	require.True(t, e.process(t, false).Success)

	res := e.process(t, true)
	assert.Equal(t, 1, res.Stats.Processed)
	assert.Zero(t, res.Stats.Skipped)
}

func TestPipeline_ConcurrencySafety(t *testing.T) {
	e := newEnv(t)
	e.snap.ImageWorkers = 8
	e.codec.Delay = time.Millisecond
	const n = 24
	for i := range n {
		e.image(t, fmt.Sprintf("g%d/img%02d.jpg", i%3, i), 700+i)
	}
	e.scan(t)

	var rec progress.Recorder
	res := e.process(t, false, WithProgress(&rec))
	require.True(t, res.Success, res.Message)
	assert.Equal(t, n, res.Stats.Processed)

	assert.Zero(t, e.codec.Overlaps(), "codec calls overlapped")
	assert.Equal(t, 1, e.ex.MaxConcurrent())

	m := e.store.Load()
	keys := m.ImageKeys()
	assert.Len(t, keys, n)
	seen := map[string]bool{}
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.Len(t, rec.Snapshots(), n)
}

func TestPipeline_FailedImageIsRetried(t *testing.T) {
	e := newEnv(t)
	e.image(t, "good.jpg", 1000)
	e.image(t, "bad.jpg", 1000)
	e.scan(t)
	e.codec.Fail["gen:bad.jpg"] = true

	res := e.process(t, false)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Stats.Failed)
	assert.Equal(t, 1, res.Stats.Processed)
	_, ok := e.store.Load().GetImage("bad.jpg")
	assert.False(t, ok, "failed image keeps no cache entry")

	delete(e.codec.Fail, "gen:bad.jpg")
	res = e.process(t, false)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.Processed)
	assert.Equal(t, 1, res.Stats.Skipped)
}

func TestPipeline_MetadataFailureCountsAsFailed(t *testing.T) {
	e := newEnv(t)
	e.image(t, "ok.jpg", 1000)
	e.image(t, "corrupt.jpg", 1000)
	e.codec.Fail["corrupt.jpg"] = true
	e.scan(t)

	res := e.process(t, false)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Stats.Failed)
	assert.Equal(t, 1, res.Stats.Processed)
	assert.NotContains(t, generatedSources(e.codec), "corrupt.jpg")
}

func TestPipeline_NoManifest(t *testing.T) {
	e := newEnv(t)
	res := e.process(t, false)
	assert.False(t, res.Success)
	assert.Equal(t, ErrNoManifest.Error(), res.Message)
}

func TestPipeline_CanceledDoesNotSave(t *testing.T) {
	e := newEnv(t)
	e.image(t, "a.jpg", 1000)
	e.scan(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(e.snap, e.store, WithCodec(e.ex)).Run(ctx, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.True(t, e.store.Load().Meta.LastImagesProcessed.IsZero())
}

func TestPipeline_OrphansRemoved(t *testing.T) {
	e := newEnv(t)
	e.image(t, "a.jpg", 1000)
	e.image(t, "b.jpg", 1000)
	e.scan(t)
	require.True(t, e.process(t, false).Success)

	require.NoError(t, os.Remove(filepath.Join(e.src, "b.jpg")))
	e.scan(t)
	res := e.process(t, false)
	assert.Zero(t, res.Stats.OrphansRemoved, "scan already dropped it")
	assert.Equal(t, []string{"a.jpg"}, e.store.Load().ImageKeys())
}

func TestPipeline_FilterGalleryNodesShareUpdates(t *testing.T) {
	e := newEnv(t)
	e.image(t, "trips/wide.jpg", 3000)
	p := filepath.Join(e.src, "best", "_index.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("---\nfilter: width > 2000\n---\n"), 0o600))
	e.scan(t)

	require.True(t, e.process(t, false).Success)
	m := e.store.Load()
	var hashes []string
	for _, img := range m.Root.Images() {
		if img.SourcePath == "trips/wide.jpg" {
			hashes = append(hashes, img.Hash)
		}
	}
	require.NotEmpty(t, hashes)
	for _, h := range hashes {
		assert.NotEmpty(t, h)
	}
}

func TestPipeline_SharedVariantDirectoryIsNotOverwritten(t *testing.T) {
	e := newEnv(t)
	e.image(t, "a/x.jpg", 800)
	e.image(t, "b/x.jpg", 800)
	e.image(t, "c/X.png", 800)
	e.scan(t)

	res := e.process(t, false)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Stats.Processed)
	assert.Equal(t, 2, res.Stats.Failed)
	assert.Equal(t, 2, res.Stats.Collisions)

	owner := filepath.Join(e.src, "a", "x.jpg")
	require.NotEmpty(t, e.codec.Variants())
	for _, v := range e.codec.Variants() {
		assert.Equal(t, owner, v.Src)
	}

	m := e.store.Load()
	assert.Equal(t, []string{"a/x.jpg"}, m.ImageKeys(), "only the owner is cached")

	again := e.process(t, false)
	assert.Equal(t, 1, again.Stats.Skipped)
	assert.Equal(t, 2, again.Stats.Collisions)
	assert.Empty(t, e.codec.Variants())
}

func TestURL(t *testing.T) {
	assert.Equal(t, "images/IMG_0001/640.webp", URL("IMG_0001.JPG", 640, "webp"))
	assert.Equal(t, filepath.Join("out", "images", "a.b", "10.jpg"), Path("out", "a.b.png", 10, "jpg"))
}

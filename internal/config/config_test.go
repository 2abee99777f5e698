package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/photobuilder/internal/retry"
)

func TestLoad_AppliesDefaultsAndResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("source: photos\nimages:\n  sizes: [1024, 640]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "photos"), cfg.Source)
	assert.Equal(t, filepath.Join(dir, "output"), cfg.Output)
	assert.Equal(t, filepath.Join(dir, ".photobuilder"), cfg.CacheDir)
	assert.Equal(t, []int{1024, 640}, cfg.Images.Sizes)
	assert.Equal(t, []string{"jpg"}, cfg.Images.Formats)
	assert.Equal(t, 85, cfg.Images.Quality)
	assert.Equal(t, "dateTaken", cfg.Sort.Field)
	assert.Equal(t, "filename", cfg.Sort.Fallback)
	assert.True(t, cfg.History.IsEnabled())
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("PB_TITLE", "Northern Light")
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("site:\n  title: ${PB_TITLE}\nwatch:\n  debounce: 3s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Northern Light", cfg.Site.Title)
	assert.Equal(t, 3*time.Second, cfg.Watch.Debounce)
}

func TestLoad_MissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero size", func(c *Config) { c.Images.Sizes = []int{0} }},
		{"webp output", func(c *Config) { c.Images.Formats = []string{"webp"} }},
		{"quality too high", func(c *Config) { c.Images.Quality = 101 }},
		{"bad direction", func(c *Config) { c.Sort.Direction = "sideways" }},
		{"negative workers", func(c *Config) { c.Images.Workers = -1 }},
		{"unknown backoff", func(c *Config) { c.Watch.RetryBackoff = "random" }},
		{"negative retries", func(c *Config) { n := -1; c.Watch.Retries = &n }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
		})
	}
	require.NoError(t, Default().Validate())
}

func TestWatchConfig_RetryPolicy(t *testing.T) {
	assert.Equal(t, retry.DefaultPolicy(), WatchConfig{}.RetryPolicy())

	zero := 0
	w := WatchConfig{Retries: &zero, RetryBackoff: "exponential", RetryInitial: 2 * time.Second, RetryMax: time.Minute}
	p := w.RetryPolicy()
	assert.Zero(t, p.MaxRetries)
	assert.Equal(t, retry.Exponential, p.Mode)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, time.Minute, p.Max)
}

func TestSnapshot_NormalizesSizesAndFormats(t *testing.T) {
	cfg := Default()
	cfg.Images.Sizes = []int{1920, 640, 1024, 640}
	cfg.Images.Formats = []string{"JPEG", "png", "jpg"}

	snap := cfg.Snapshot()

	assert.Equal(t, []int{640, 1024, 1920}, snap.Sizes)
	assert.Equal(t, []string{"jpg", "png"}, snap.Formats)
	assert.Equal(t, max(runtime.NumCPU(), 1), snap.ImageWorkers)

	// Snapshot must not alias the live config.
	cfg.Images.Sizes[0] = 1
	assert.Equal(t, []int{640, 1024, 1920}, snap.Sizes)
}

func TestInit_RefusesOverwriteWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "My Portfolio", cfg.Site.Title)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/photobuilder/internal/retry"
)

// DefaultFileName is the configuration file looked up when none is given.
const DefaultFileName = "photobuilder.yaml"

// Config represents the application configuration
type Config struct {
	Source   string        `yaml:"source"`
	Output   string        `yaml:"output"`
	CacheDir string        `yaml:"cache_dir"`
	Images   ImagesConfig  `yaml:"images"`
	Scan     ScanConfig    `yaml:"scan"`
	Sort     SortConfig    `yaml:"sort"`
	History  HistoryConfig `yaml:"history"`
	Watch    WatchConfig   `yaml:"watch"`
	Site     SiteConfig    `yaml:"site"`
}

// ImagesConfig controls variant generation. Sizes, Formats and Quality feed the
// config hash; changing any of them invalidates every cached image.
type ImagesConfig struct {
	Sizes     []int    `yaml:"sizes"`
	Formats   []string `yaml:"formats"`
	Quality   int      `yaml:"quality"`
	MinWidth  int      `yaml:"min_width,omitempty"`
	MinHeight int      `yaml:"min_height,omitempty"`
	Workers   int      `yaml:"workers,omitempty"` // 0 = runtime.NumCPU()
}

// ScanConfig controls the content scanner.
type ScanConfig struct {
	Workers          int `yaml:"workers,omitempty"` // 0 = runtime.NumCPU()
	ProgressInterval int `yaml:"progress_interval,omitempty"`
}

// SortConfig is the site-wide default content order. Galleries may override it.
type SortConfig struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction"`
	Fallback  string `yaml:"fallback,omitempty"`
}

// HistoryConfig controls the SQLite stage history kept next to the manifest.
type HistoryConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether history recording is on (default true).
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	Debounce     time.Duration `yaml:"debounce,omitempty"`
	RebuildEvery time.Duration `yaml:"rebuild_every,omitempty"`

	// Failed rebuilds are retried with backoff. Retries defaults to 2.
	Retries      *int          `yaml:"retries,omitempty"`
	RetryBackoff string        `yaml:"retry_backoff,omitempty"`
	RetryInitial time.Duration `yaml:"retry_initial,omitempty"`
	RetryMax     time.Duration `yaml:"retry_max,omitempty"`
}

// RetryPolicy builds the rebuild retry policy. Validate rejects unknown modes
// before this is called.
func (w WatchConfig) RetryPolicy() retry.Policy {
	mode, _ := retry.ParseMode(w.RetryBackoff)
	n := -1
	if w.Retries != nil {
		n = *w.Retries
	}
	return retry.NewPolicy(mode, w.RetryInitial, w.RetryMax, n)
}

// SiteConfig carries values handed to templates.
type SiteConfig struct {
	Title       string `yaml:"title"`
	BaseURL     string `yaml:"base_url"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
}

// Load loads configuration from the specified file. Relative paths inside the
// file are resolved against the file's directory.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, errors.ConfigError("configuration file not found").
			WithContext("path", configPath).Build()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "read config file").
			Fatal().WithContext("path", configPath).Build()
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(configPath))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration content, expanding environment variables and
// applying defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "unmarshal config").Fatal().Build()
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func (c *Config) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Source = resolve(c.Source)
	c.Output = resolve(c.Output)
	c.CacheDir = resolve(c.CacheDir)
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).Build()
	}

	example := Default()
	example.Site.Title = "My Portfolio"
	example.Site.Description = "Photographs"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}

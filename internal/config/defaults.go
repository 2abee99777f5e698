package config

import "strings"

var (
	defaultSizes   = []int{640, 1024, 1920}
	defaultFormats = []string{"jpg"}
)

const (
	defaultQuality          = 85
	defaultProgressInterval = 10
	defaultSortField        = "dateTaken"
	defaultSortFallback     = "filename"
)

// ApplyDefaults fills unset fields. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Source == "" {
		cfg.Source = "content"
	}
	if cfg.Output == "" {
		cfg.Output = "output"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".photobuilder"
	}

	if len(cfg.Images.Sizes) == 0 {
		cfg.Images.Sizes = append([]int(nil), defaultSizes...)
	}
	if len(cfg.Images.Formats) == 0 {
		cfg.Images.Formats = append([]string(nil), defaultFormats...)
	}
	for i, f := range cfg.Images.Formats {
		cfg.Images.Formats[i] = NormalizeFormat(f)
	}
	if cfg.Images.Quality == 0 {
		cfg.Images.Quality = defaultQuality
	}

	if cfg.Scan.ProgressInterval <= 0 {
		cfg.Scan.ProgressInterval = defaultProgressInterval
	}

	if cfg.Sort.Field == "" {
		cfg.Sort.Field = defaultSortField
		if cfg.Sort.Fallback == "" {
			cfg.Sort.Fallback = defaultSortFallback
		}
	}
	if cfg.Sort.Direction == "" {
		cfg.Sort.Direction = "asc"
	}
	cfg.Sort.Direction = strings.ToLower(cfg.Sort.Direction)

	if cfg.Site.Title == "" {
		cfg.Site.Title = "Portfolio"
	}
	if cfg.Site.BaseURL == "" {
		cfg.Site.BaseURL = "/"
	}
}

// NormalizeFormat lower-cases a format name and folds aliases ("jpeg" -> "jpg").
func NormalizeFormat(f string) string {
	f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	if f == "jpeg" {
		return "jpg"
	}
	return f
}

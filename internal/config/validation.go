package config

import (
	"fmt"

	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/photobuilder/internal/retry"
)

// SupportedFormats lists the output encodings the imaging codec can write.
var SupportedFormats = map[string]bool{"jpg": true, "png": true, "gif": true}

// Validate checks the configuration and returns a classified validation error
// describing the first problem found.
func (c *Config) Validate() error {
	if c.Source == "" {
		return invalid("source directory is required", "source", c.Source)
	}
	if c.Output == "" {
		return invalid("output directory is required", "output", c.Output)
	}
	if c.CacheDir == "" {
		return invalid("cache directory is required", "cache_dir", c.CacheDir)
	}
	if len(c.Images.Sizes) == 0 {
		return invalid("at least one image size is required", "images.sizes", c.Images.Sizes)
	}
	for _, w := range c.Images.Sizes {
		if w <= 0 {
			return invalid(fmt.Sprintf("image size must be positive, got %d", w), "images.sizes", c.Images.Sizes)
		}
	}
	if len(c.Images.Formats) == 0 {
		return invalid("at least one image format is required", "images.formats", c.Images.Formats)
	}
	for _, f := range c.Images.Formats {
		if !SupportedFormats[NormalizeFormat(f)] {
			return invalid(fmt.Sprintf("unsupported image format %q", f), "images.formats", c.Images.Formats)
		}
	}
	if c.Images.Quality < 1 || c.Images.Quality > 100 {
		return invalid(fmt.Sprintf("quality must be between 1 and 100, got %d", c.Images.Quality), "images.quality", c.Images.Quality)
	}
	if c.Images.MinWidth < 0 || c.Images.MinHeight < 0 {
		return invalid("minimum dimensions cannot be negative", "images.min_width", c.Images.MinWidth)
	}
	if c.Images.Workers < 0 || c.Scan.Workers < 0 {
		return invalid("worker counts cannot be negative", "workers", c.Images.Workers)
	}
	switch c.Sort.Direction {
	case "asc", "desc":
	default:
		return invalid(fmt.Sprintf("sort direction must be asc or desc, got %q", c.Sort.Direction), "sort.direction", c.Sort.Direction)
	}
	if c.Watch.Debounce < 0 || c.Watch.RebuildEvery < 0 {
		return invalid("watch intervals cannot be negative", "watch", c.Watch)
	}
	if _, err := retry.ParseMode(c.Watch.RetryBackoff); err != nil {
		return invalid(err.Error(), "watch.retry_backoff", c.Watch.RetryBackoff)
	}
	if c.Watch.Retries != nil && *c.Watch.Retries < 0 {
		return invalid("watch retries cannot be negative", "watch.retries", *c.Watch.Retries)
	}
	return nil
}

func invalid(msg, field string, value any) error {
	return errors.ValidationError(msg).WithContext("field", field).WithContext("value", value).Build()
}

package config

import (
	"runtime"
	"slices"
)

// Snapshot is the immutable view of the configuration a single stage invocation
// works from. Stages never read Config directly, so a reload between stages
// cannot change settings under a running stage.
type Snapshot struct {
	SourceDir string
	OutputDir string
	CacheDir  string

	// Sizes is ascending and de-duplicated.
	Sizes []int
	// Formats keeps configured order (the first one names the primary variant)
	// with duplicates removed.
	Formats   []string
	Quality   int
	MinWidth  int
	MinHeight int

	ImageWorkers     int
	ScanWorkers      int
	ProgressInterval int

	SortField     string
	SortDirection string
	SortFallback  string

	Site SiteConfig
}

// Snapshot copies the configuration into an immutable Snapshot, resolving
// worker defaults against the current machine.
func (c *Config) Snapshot() Snapshot {
	sizes := slices.Clone(c.Images.Sizes)
	slices.Sort(sizes)
	sizes = slices.Compact(sizes)

	formats := make([]string, 0, len(c.Images.Formats))
	for _, f := range c.Images.Formats {
		f = NormalizeFormat(f)
		if !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}

	return Snapshot{
		SourceDir:        c.Source,
		OutputDir:        c.Output,
		CacheDir:         c.CacheDir,
		Sizes:            sizes,
		Formats:          formats,
		Quality:          c.Images.Quality,
		MinWidth:         c.Images.MinWidth,
		MinHeight:        c.Images.MinHeight,
		ImageWorkers:     workersOrCPU(c.Images.Workers),
		ScanWorkers:      workersOrCPU(c.Scan.Workers),
		ProgressInterval: c.Scan.ProgressInterval,
		SortField:        c.Sort.Field,
		SortDirection:    c.Sort.Direction,
		SortFallback:     c.Sort.Fallback,
		Site:             c.Site,
	}
}

func workersOrCPU(n int) int {
	if n > 0 {
		return n
	}
	return max(runtime.NumCPU(), 1)
}

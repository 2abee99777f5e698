package scan

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/photobuilder/internal/content"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
	"git.home.luguber.info/inful/photobuilder/internal/progress"
)

// readMetadata extracts geometry and EXIF for every image in parallel and
// returns the images that belong in the tree, keyed by source path. Images
// below the minimum size are dropped; extraction failures are kept with
// Error set.
func (s *Scanner) readMetadata(ctx context.Context, files []sourceFile, m *manifest.Manifest, stats *Stats) (map[string]*manifest.ImageContent, error) {
	results := make([]*manifest.ImageContent, len(files))
	total := len(files)
	if total == 0 {
		return map[string]*manifest.ImageContent{}, nil
	}
	workers := min(max(s.snap.ScanWorkers, 1), total)
	interval := max(s.snap.ProgressInterval, 1)

	var done, tooSmall, failed atomic.Int64
	tasks := make(chan int)
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for i := range tasks {
			if ctx.Err() != nil {
				return
			}
			img, small := s.readOne(files[i], m)
			switch {
			case small:
				tooSmall.Add(1)
			case img.Error != "":
				failed.Add(1)
			}
			if !small {
				results[i] = img
			}
			n := done.Add(1)
			if n%int64(interval) == 0 || n == int64(total) {
				s.sink.Report(progress.Snapshot{
					Stage:   StageName,
					Status:  "Reading image metadata",
					Current: files[i].name,
					Done:    int(n),
					Total:   total,
					Skipped: int(tooSmall.Load()),
				})
			}
		}
	}

	wg.Add(workers)
	for range workers {
		go worker()
	}
	for i := range files {
		select {
		case <-ctx.Done():
			close(tasks)
			wg.Wait()
			return nil, ctx.Err()
		case tasks <- i:
		}
	}
	close(tasks)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.SkippedTooSmall = int(tooSmall.Load())
	stats.MetadataFailures = int(failed.Load())

	out := make(map[string]*manifest.ImageContent, total)
	for _, img := range results {
		if img != nil {
			out[img.SourcePath] = img
		}
	}
	return out, nil
}

// readOne builds the tree record for one image. The cached hash and
// processing time are carried over from the manifest.
func (s *Scanner) readOne(f sourceFile, m *manifest.Manifest) (*manifest.ImageContent, bool) {
	img := &manifest.ImageContent{
		Filename:   f.name,
		SourcePath: f.key,
		FileSize:   f.size,
	}
	if cached, ok := m.GetImage(f.key); ok {
		img.Hash = cached.Hash
		img.ProcessedAt = cached.ProcessedAt
	}

	md, err := s.reader.ReadMetadata(f.abs)
	if err != nil {
		s.logger.Warn("Failed to read image metadata", logfields.Image(f.key), logfields.Error(err))
		img.Error = err.Error()
		return img, false
	}
	if (s.snap.MinWidth > 0 && md.Width < s.snap.MinWidth) || (s.snap.MinHeight > 0 && md.Height < s.snap.MinHeight) {
		s.logger.Info("Skipping image below minimum size",
			logfields.Image(f.key), logfields.Width(md.Width), slog.Int("height", md.Height))
		return nil, true
	}

	img.Width = md.Width
	img.Height = md.Height
	img.Exif = md.Exif
	if md.Exif != nil && md.Exif.DateTaken != nil {
		taken := *md.Exif.DateTaken
		img.DateTaken = &taken
	}
	img.Sizes = content.ComputeSizes(s.snap.Sizes, md.Width)
	return img, false
}

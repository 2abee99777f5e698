// Package variants generates the resized renditions of every image in the
// site tree, skipping images whose source and outputs are unchanged.
//
// Work is spread over a worker pool, but every codec call for an image runs
// inside one imaging.Exclusive section. Manifest and tree bookkeeping use a
// separate lock so they never wait on the codec.
package variants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/imaging"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
	"git.home.luguber.info/inful/photobuilder/internal/metrics"
	"git.home.luguber.info/inful/photobuilder/internal/progress"
	"git.home.luguber.info/inful/photobuilder/internal/util/sets"
)

// StageName labels pipeline results, logs and metrics.
const StageName = "images"

// ErrNoManifest is reported when no scan has produced a tree yet.
var ErrNoManifest = errors.New("no manifest found; run scan first")

// Stats summarizes one pipeline run.
type Stats struct {
	Images           int   `json:"images"`
	Processed        int   `json:"processed"`
	Skipped          int   `json:"skipped"`
	Failed           int   `json:"failed"`
	VariantsPlanned  int   `json:"variantsPlanned"`
	VariantsWritten  int   `json:"variantsWritten"`
	OutputBytes      int64 `json:"outputBytes"`
	OutputFiles      int   `json:"outputFiles"`
	OrphansRemoved   int   `json:"orphansRemoved"`
	Collisions       int   `json:"collisions"`
	CacheInvalidated bool  `json:"cacheInvalidated"`
}

// Result is the outcome of a run; only cancellation is returned as an error.
type Result struct {
	Success bool
	Message string
	Stats   Stats
}

// Pipeline generates variants for one configuration snapshot.
type Pipeline struct {
	snap     config.Snapshot
	store    *manifest.Store
	codec    *imaging.Exclusive
	sink     progress.Sink
	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithCodec(c *imaging.Exclusive) Option { return func(p *Pipeline) { p.codec = c } }

func WithProgress(s progress.Sink) Option { return func(p *Pipeline) { p.sink = progress.OrNop(s) } }

func WithRecorder(r metrics.Recorder) Option { return func(p *Pipeline) { p.recorder = r } }

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New returns a pipeline using the shared codec unless WithCodec is given.
func New(snap config.Snapshot, store *manifest.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		snap:     snap,
		store:    store,
		sink:     progress.Discard,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.codec == nil {
		p.codec = imaging.Shared()
	}
	return p
}

// job is one selected image: its manifest key, the new source hash and every
// tree node carrying it (filter galleries duplicate nodes).
type job struct {
	key   string
	abs   string
	hash  string
	nodes []*manifest.ImageContent
}

// Run generates stale variants. With force every image is regenerated.
func (p *Pipeline) Run(ctx context.Context, force bool) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Image pipeline panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			res, err = &Result{Message: fmt.Sprintf("image processing failed: %v", r)}, nil
		}
	}()

	res, err = p.run(ctx, force)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	p.logger.Error("Image pipeline failed", logfields.Stage(StageName), logfields.Error(err))
	if res == nil {
		res = &Result{}
	}
	res.Success = false
	res.Message = err.Error()
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, force bool) (*Result, error) {
	res := &Result{}
	m := p.store.Load()
	if m.Root == nil {
		res.Message = ErrNoManifest.Error()
		return res, nil
	}

	jobs, err := p.selectJobs(ctx, m, force, &res.Stats)
	if err != nil {
		return res, err
	}
	if err := p.generate(ctx, m, jobs, &res.Stats); err != nil {
		return res, err
	}

	bytes, files, err := p.housekeeping(ctx)
	if err != nil {
		return res, err
	}
	res.Stats.OutputBytes, res.Stats.OutputFiles = bytes, files
	p.recorder.SetOutputBytes(bytes)

	m.Meta.LastImagesProcessed = p.now().UTC()
	m.Meta.ConfigHash = manifest.ConfigHash(p.snap.Sizes, p.snap.Formats, p.snap.Quality)
	if err := p.store.Save(m); err != nil {
		return res, err
	}

	s := res.Stats
	res.Success = s.Failed == 0
	res.Message = fmt.Sprintf("%d processed, %d cached, %d failed, %d variants written",
		s.Processed, s.Skipped, s.Failed, s.VariantsWritten)
	return res, nil
}

// selectJobs runs sequentially: it invalidates the cache on config changes,
// drops orphans and picks every image whose hash changed or whose outputs
// are incomplete.
func (p *Pipeline) selectJobs(ctx context.Context, m *manifest.Manifest, force bool, stats *Stats) ([]*job, error) {
	nodes := map[string][]*manifest.ImageContent{}
	m.Root.Walk(func(e *manifest.Entry) bool {
		for _, c := range e.Content {
			if c.Image != nil {
				nodes[c.Image.SourcePath] = append(nodes[c.Image.SourcePath], c.Image)
			}
		}
		return true
	})
	keys := m.Root.ImageKeys()
	stats.Images = len(keys)

	cfgHash := manifest.ConfigHash(p.snap.Sizes, p.snap.Formats, p.snap.Quality)
	if m.ConfigChanged(cfgHash) {
		p.logger.Info("Image settings changed, regenerating all images", logfields.Count(m.ImageCount()))
		m.ClearImages()
		stats.CacheInvalidated = true
	}
	removed := m.RemoveOrphans(sets.New(keys...))
	stats.OrphansRemoved = len(removed)
	for _, k := range removed {
		p.logger.Info("Removed orphaned manifest entry", logfields.Image(k))
	}

	var jobs []*job
	owners := map[string]string{} // variant directory -> first image key
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep := nodes[key][0]
		if rep.Error != "" || len(rep.Sizes) == 0 {
			p.logger.Warn("Image has no usable metadata, not processing", logfields.Image(key), slog.String("reason", rep.Error))
			stats.Failed++
			continue
		}
		dir := strings.ToLower(BaseName(rep.Filename))
		if owner, taken := owners[dir]; taken {
			p.logger.Warn("Image would overwrite the variants of another image, not processing",
				logfields.Image(key), slog.String("owner", owner), logfields.Path(path.Join(ImagesDir, BaseName(rep.Filename))))
			stats.Failed++
			stats.Collisions++
			continue
		}
		owners[dir] = key
		abs := filepath.Join(p.snap.SourceDir, filepath.FromSlash(key))
		info, err := os.Stat(abs)
		if err != nil {
			p.logger.Warn("Source image unavailable", logfields.Image(key), logfields.Error(err))
			stats.Failed++
			continue
		}
		hash := manifest.SourceHash(rep.Filename, info.ModTime(), info.Size())

		cached := false
		if entry, ok := m.GetImage(key); ok && !manifest.NeedsProcessing(&entry, hash) {
			cached = outputsExist(p.snap.OutputDir, rep.Filename, rep.Sizes, p.snap.Formats)
			if !cached {
				p.logger.Info("Cached image is missing outputs, regenerating", logfields.Image(key))
			}
		}
		if cached && !force {
			stats.Skipped++
			continue
		}
		stats.VariantsPlanned += len(rep.Sizes) * len(p.snap.Formats)
		jobs = append(jobs, &job{key: key, abs: abs, hash: hash, nodes: nodes[key]})
	}
	p.recorder.AddImages(metrics.ImageSkipped, stats.Skipped)
	p.logger.Info("Image selection complete",
		logfields.Stage(StageName),
		slog.Int("selected", len(jobs)),
		slog.Int("cached", stats.Skipped),
		slog.Int("variants_planned", stats.VariantsPlanned))
	return jobs, nil
}

// generate fans jobs out to workers. Each image is produced entirely inside
// one exclusive codec section.
func (p *Pipeline) generate(ctx context.Context, m *manifest.Manifest, jobs []*job, stats *Stats) error {
	if len(jobs) == 0 {
		return nil
	}
	workers := min(max(p.snap.ImageWorkers, 1), len(jobs))
	p.recorder.SetWorkers(workers)

	var (
		mu      sync.Mutex // guards tree nodes
		done    atomic.Int64
		failed  atomic.Int64
		written atomic.Int64
		wg      sync.WaitGroup
		tasks   = make(chan *job)
	)
	total, skipped := len(jobs), stats.Skipped
	worker := func() {
		defer wg.Done()
		for j := range tasks {
			if ctx.Err() != nil {
				return
			}
			n, err := p.generateOne(ctx, j)
			written.Add(int64(n))
			p.recorder.AddVariants(n)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				failed.Add(1)
				p.recorder.AddImages(metrics.ImageFailed, 1)
				p.logger.Error("Failed to generate image variants", logfields.Image(j.key), logfields.Error(err))
			default:
				at := p.now().UTC()
				m.SetImage(j.key, manifest.ImageEntry{Hash: j.hash, ProcessedAt: at})
				mu.Lock()
				for _, node := range j.nodes {
					node.Hash = j.hash
					node.ProcessedAt = at
				}
				mu.Unlock()
				p.recorder.AddImages(metrics.ImageProcessed, 1)
			}
			p.sink.Report(progress.Snapshot{
				Stage:   StageName,
				Status:  "Generating variants",
				Current: filepath.Base(j.key),
				Done:    int(done.Add(1)),
				Total:   total,
				Skipped: skipped,
			})
		}
	}

	p.logger.Info("Generating image variants", logfields.Count(total), logfields.Workers(workers))
	wg.Add(workers)
	for range workers {
		go worker()
	}
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			close(tasks)
			wg.Wait()
			return ctx.Err()
		case tasks <- j:
		}
	}
	close(tasks)
	wg.Wait()

	stats.Failed += int(failed.Load())
	stats.Processed = int(done.Load()) - int(failed.Load())
	stats.VariantsWritten = int(written.Load())
	return ctx.Err()
}

// generateOne writes every size and format of one image and returns how many
// variants were written.
func (p *Pipeline) generateOne(ctx context.Context, j *job) (int, error) {
	rep := j.nodes[0]
	written := 0
	queued := time.Now()
	err := p.codec.Do(ctx, func(c imaging.Codec) error {
		p.recorder.ObserveCodecWait(time.Since(queued))
		md, err := c.ReadMetadata(j.abs)
		if err != nil {
			return fmt.Errorf("read metadata: %w", err)
		}
		if md.Width != rep.Width {
			p.logger.Warn("Image dimensions changed since scan; rescan to refresh sizes",
				logfields.Image(j.key), logfields.Width(md.Width))
		}
		for _, w := range rep.Sizes {
			for _, f := range p.snap.Formats {
				dst := Path(p.snap.OutputDir, rep.Filename, w, f)
				if _, err := c.GenerateVariant(j.abs, dst, w, f, p.snap.Quality); err != nil {
					return fmt.Errorf("variant %dpx %s: %w", w, f, err)
				}
				written++
			}
		}
		return nil
	})
	return written, err
}

// housekeeping totals the size and count of files under the images output.
func (p *Pipeline) housekeeping(ctx context.Context) (int64, int, error) {
	root := filepath.Join(p.snap.OutputDir, ImagesDir)
	var bytes int64
	var files int
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		bytes += info.Size()
		files++
		return nil
	})
	return bytes, files, err
}

// Package scan turns a source directory into the unified site tree and
// refreshes the manifest around it.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/imaging"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
	"git.home.luguber.info/inful/photobuilder/internal/navigation"
	"git.home.luguber.info/inful/photobuilder/internal/progress"
	"git.home.luguber.info/inful/photobuilder/internal/util/sets"
)

// StageName labels scan results, logs and metrics.
const StageName = "scan"

// Stats summarizes one scan.
type Stats struct {
	Galleries        int  `json:"galleries"`
	Images           int  `json:"images"`
	Markdown         int  `json:"markdown"`
	SkippedTooSmall  int  `json:"skippedTooSmall"`
	MetadataFailures int  `json:"metadataFailures"`
	OrphansRemoved   int  `json:"orphansRemoved"`
	CacheInvalidated bool `json:"cacheInvalidated"`
}

// Result is the outcome of a scan. Failures are reported here; only
// cancellation is returned as an error.
type Result struct {
	Success bool
	Message string
	Stats   Stats
	// Removed lists the orphaned manifest keys, sorted.
	Removed []string
}

// Scanner builds the site tree for one configuration snapshot.
type Scanner struct {
	snap   config.Snapshot
	store  *manifest.Store
	nav    navigation.Builder
	reader imaging.MetadataReader
	sink   progress.Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

func WithNavigation(b navigation.Builder) Option { return func(s *Scanner) { s.nav = b } }

func WithMetadataReader(r imaging.MetadataReader) Option { return func(s *Scanner) { s.reader = r } }

func WithProgress(p progress.Sink) Option { return func(s *Scanner) { s.sink = progress.OrNop(p) } }

func WithLogger(l *slog.Logger) Option { return func(s *Scanner) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Scanner) { s.now = now } }

// New returns a scanner. Without options it reads metadata through the shared
// codec and derives navigation from the filesystem.
func New(snap config.Snapshot, store *manifest.Store, opts ...Option) *Scanner {
	s := &Scanner{
		snap:   snap,
		store:  store,
		sink:   progress.Discard,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.nav == nil {
		s.nav = navigation.NewBuilder(s.logger)
	}
	if s.reader == nil {
		s.reader = imaging.Shared().Reader()
	}
	return s
}

// Run scans the source directory and saves the manifest.
func (s *Scanner) Run(ctx context.Context) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scan panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			res, err = &Result{Message: fmt.Sprintf("scan failed: %v", r)}, nil
		}
	}()

	res, err = s.run(ctx)
	if err == nil {
		return res, nil
	}
	if isCanceled(err) {
		return nil, err
	}
	s.logger.Error("Scan failed", logfields.Stage(StageName), logfields.Error(err))
	if res == nil {
		res = &Result{}
	}
	res.Success = false
	res.Message = err.Error()
	return res, nil
}

func (s *Scanner) run(ctx context.Context) (*Result, error) {
	res := &Result{}
	info, err := os.Stat(s.snap.SourceDir)
	if err != nil || !info.IsDir() {
		res.Message = fmt.Sprintf("source directory not found: %s", s.snap.SourceDir)
		s.logger.Warn("Source directory missing", logfields.Path(s.snap.SourceDir))
		return res, nil
	}

	m := s.store.Load()
	cfgHash := manifest.ConfigHash(s.snap.Sizes, s.snap.Formats, s.snap.Quality)
	if m.ConfigChanged(cfgHash) {
		s.logger.Info("Image settings changed, discarding cached hashes",
			slog.String("previous", m.Meta.ConfigHash), slog.String("current", cfgHash),
			logfields.Count(m.ImageCount()))
		m.ClearImages()
		res.Stats.CacheInvalidated = true
	}

	src, err := s.walk(ctx)
	if err != nil {
		return res, err
	}

	images, err := s.readMetadata(ctx, src.images, m, &res.Stats)
	if err != nil {
		return res, err
	}
	res.Stats.Markdown = len(src.markdown)

	items, err := s.nav.Build(s.snap.SourceDir)
	if err != nil {
		return res, fmt.Errorf("build navigation: %w", err)
	}

	tb := newTreeBuilder(s, src, images)
	root := tb.build(items)
	res.Stats.Galleries = tb.galleries
	res.Stats.Images = len(images)

	res.Removed = m.RemoveOrphans(sets.New(root.ImageKeys()...))
	res.Stats.OrphansRemoved = len(res.Removed)
	for _, key := range res.Removed {
		s.logger.Info("Removed orphaned manifest entry", logfields.Image(key))
	}

	m.Root = root
	m.Meta.ConfigHash = cfgHash
	m.Meta.LastScanned = s.now().UTC()
	if err := s.store.Save(m); err != nil {
		return res, err
	}

	res.Success = true
	res.Message = fmt.Sprintf("scanned %d galleries, %d images, %d markdown files",
		res.Stats.Galleries, res.Stats.Images, res.Stats.Markdown)
	return res, nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

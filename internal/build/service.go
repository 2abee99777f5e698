package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/history"
	"git.home.luguber.info/inful/photobuilder/internal/imaging"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
	"git.home.luguber.info/inful/photobuilder/internal/metrics"
	"git.home.luguber.info/inful/photobuilder/internal/progress"
	"git.home.luguber.info/inful/photobuilder/internal/render"
	"git.home.luguber.info/inful/photobuilder/internal/scan"
	"git.home.luguber.info/inful/photobuilder/internal/variants"
)

// StageBuild labels a full scan, images and render run.
const StageBuild = "build"

// Result is the outcome of one stage or of a full build.
type Result struct {
	Stage    string
	Success  bool
	Message  string
	Stats    any
	Duration time.Duration
	RunID    string
}

// RunStats collects the stage stats of a full build. Stages that did not run
// are nil.
type RunStats struct {
	Scan   *scan.Stats     `json:"scan,omitempty"`
	Images *variants.Stats `json:"images,omitempty"`
	Render *render.Stats   `json:"render,omitempty"`
}

// HistoryRecorder persists stage results.
type HistoryRecorder interface {
	Record(ctx context.Context, run history.Run) (int64, error)
}

// Service executes stages for one configuration snapshot.
type Service struct {
	snap     config.Snapshot
	store    *manifest.Store
	codec    *imaging.Exclusive
	recorder metrics.Recorder
	history  HistoryRecorder
	sink     progress.Sink
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCodec replaces the shared codec, for both metadata reads and variants.
func WithCodec(c *imaging.Exclusive) Option { return func(s *Service) { s.codec = c } }

func WithRecorder(r metrics.Recorder) Option { return func(s *Service) { s.recorder = r } }

func WithHistory(h HistoryRecorder) Option { return func(s *Service) { s.history = h } }

func WithProgress(p progress.Sink) Option { return func(s *Service) { s.sink = progress.OrNop(p) } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithRunIDs overrides run id generation.
func WithRunIDs(fn func() string) Option { return func(s *Service) { s.newID = fn } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a service whose manifest lives in snap.CacheDir.
func New(snap config.Snapshot, opts ...Option) *Service {
	s := &Service{
		snap:     snap,
		recorder: metrics.NoopRecorder{},
		sink:     progress.Discard,
		logger:   slog.Default(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = imaging.Shared()
	}
	s.store = manifest.NewStore(snap.CacheDir).WithLogger(s.logger).WithClock(s.now)
	return s
}

// Snapshot returns the configuration the service runs with.
func (s *Service) Snapshot() config.Snapshot { return s.snap }

// stageOutcome is what a stage body reports back to runStage.
type stageOutcome struct {
	success bool
	message string
	stats   any
}

// Scan rebuilds the site tree from the source directory.
func (s *Service) Scan(ctx context.Context) (*Result, error) {
	return s.runStage(ctx, s.newID(), scan.StageName, s.scan)
}

// ProcessImages generates missing or stale variants. force ignores the cache.
func (s *Service) ProcessImages(ctx context.Context, force bool) (*Result, error) {
	return s.runStage(ctx, s.newID(), variants.StageName, func(ctx context.Context) (stageOutcome, error) {
		return s.images(ctx, force)
	})
}

// Render writes the HTML pages.
func (s *Service) Render(ctx context.Context) (*Result, error) {
	return s.runStage(ctx, s.newID(), render.StageName, s.render)
}

// Run executes scan, images and render under one run id, stopping at the
// first stage that fails.
func (s *Service) Run(ctx context.Context, force bool) (*Result, error) {
	runID := s.newID()
	return s.runStage(ctx, runID, StageBuild, func(ctx context.Context) (stageOutcome, error) {
		stats := &RunStats{}
		out := stageOutcome{stats: stats}

		res, err := s.runStage(ctx, runID, scan.StageName, s.scan)
		if err != nil {
			return out, err
		}
		stats.Scan, _ = res.Stats.(*scan.Stats)
		if !res.Success {
			out.message = "scan: " + res.Message
			return out, nil
		}

		res, err = s.runStage(ctx, runID, variants.StageName, func(ctx context.Context) (stageOutcome, error) {
			return s.images(ctx, force)
		})
		if err != nil {
			return out, err
		}
		stats.Images, _ = res.Stats.(*variants.Stats)
		if !res.Success {
			out.message = "images: " + res.Message
			return out, nil
		}

		res, err = s.runStage(ctx, runID, render.StageName, s.render)
		if err != nil {
			return out, err
		}
		stats.Render, _ = res.Stats.(*render.Stats)
		if !res.Success {
			out.message = "render: " + res.Message
			return out, nil
		}

		out.success = true
		out.message = fmt.Sprintf("%d galleries, %d images processed, %d cached, %d pages",
			stats.Scan.Galleries, stats.Images.Processed, stats.Images.Skipped, stats.Render.Pages)
		return out, nil
	})
}

func (s *Service) scan(ctx context.Context) (stageOutcome, error) {
	res, err := scan.New(s.snap, s.store,
		scan.WithMetadataReader(s.codec.Reader()),
		scan.WithProgress(s.sink),
		scan.WithLogger(s.logger),
		scan.WithClock(s.now),
	).Run(ctx)
	if err != nil {
		return stageOutcome{}, err
	}
	return stageOutcome{success: res.Success, message: res.Message, stats: &res.Stats}, nil
}

func (s *Service) images(ctx context.Context, force bool) (stageOutcome, error) {
	res, err := variants.New(s.snap, s.store,
		variants.WithCodec(s.codec),
		variants.WithProgress(s.sink),
		variants.WithRecorder(s.recorder),
		variants.WithLogger(s.logger),
		variants.WithClock(s.now),
	).Run(ctx, force)
	if err != nil {
		return stageOutcome{}, err
	}
	return stageOutcome{success: res.Success, message: res.Message, stats: &res.Stats}, nil
}

func (s *Service) render(ctx context.Context) (stageOutcome, error) {
	res, err := render.New(s.snap, s.store,
		render.WithProgress(s.sink),
		render.WithLogger(s.logger),
		render.WithClock(s.now),
	).Run(ctx)
	if err != nil {
		return stageOutcome{}, err
	}
	return stageOutcome{success: res.Success, message: res.Message, stats: &res.Stats}, nil
}

// runStage wraps a stage body with logging, metrics and history.
func (s *Service) runStage(ctx context.Context, runID, stage string, fn func(context.Context) (stageOutcome, error)) (*Result, error) {
	logger := s.logger.With(logfields.RunID(runID), logfields.Stage(stage))
	start := s.now()
	logger.Info("Stage started")

	out, err := fn(ctx)
	dur := s.now().Sub(start)
	s.recorder.ObserveStageDuration(stage, dur)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.recorder.IncStageResult(stage, metrics.ResultCanceled)
			logger.Warn("Stage canceled", logfields.DurationMS(float64(dur.Milliseconds())))
			s.record(ctx, logger, runID, stage, start, dur, stageOutcome{message: "canceled: " + err.Error(), stats: out.stats})
			return nil, err
		}
		// Stage bodies only return cancellation; anything else is a failure.
		out = stageOutcome{message: err.Error(), stats: out.stats}
	}

	res := &Result{
		Stage:    stage,
		Success:  out.success,
		Message:  out.message,
		Stats:    out.stats,
		Duration: dur,
		RunID:    runID,
	}
	if res.Success {
		s.recorder.IncStageResult(stage, metrics.ResultSuccess)
		logger.Info("Stage finished", logfields.DurationMS(float64(dur.Milliseconds())), slog.String("message", res.Message))
	} else {
		s.recorder.IncStageResult(stage, metrics.ResultFailed)
		logger.Warn("Stage failed", logfields.DurationMS(float64(dur.Milliseconds())), slog.String("message", res.Message))
	}
	s.record(ctx, logger, runID, stage, start, dur, out)
	return res, nil
}

// record appends to history; a history failure never fails the stage.
func (s *Service) record(ctx context.Context, logger *slog.Logger, runID, stage string, start time.Time, dur time.Duration, out stageOutcome) {
	if s.history == nil {
		return
	}
	var stats json.RawMessage
	if out.stats != nil {
		data, err := json.Marshal(out.stats)
		if err == nil {
			stats = data
		}
	}
	_, err := s.history.Record(context.WithoutCancel(ctx), history.Run{
		RunID:     runID,
		Stage:     stage,
		Success:   out.success,
		Message:   out.message,
		Stats:     stats,
		StartedAt: start,
		Duration:  dur,
	})
	if err != nil {
		logger.Warn("Failed to record stage history", logfields.Error(err))
	}
}

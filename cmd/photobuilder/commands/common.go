package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/photobuilder/internal/build"
	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/photobuilder/internal/history"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/metrics"
	"git.home.luguber.info/inful/photobuilder/internal/progress"
	"git.home.luguber.info/inful/photobuilder/internal/render"
	"git.home.luguber.info/inful/photobuilder/internal/scan"
	"git.home.luguber.info/inful/photobuilder/internal/variants"
)

// Global is shared state bound into every command.
type Global struct {
	Logger   *slog.Logger
	Registry *prom.Registry
	Recorder metrics.Recorder
	// Out receives the human-readable summaries.
	Out io.Writer
}

// NewGlobal returns a Global with a fresh metrics registry.
func NewGlobal() *Global {
	reg := prom.NewRegistry()
	return &Global{
		Logger:   slog.Default(),
		Registry: reg,
		Recorder: metrics.NewPrometheusRecorder(reg),
		Out:      os.Stdout,
	}
}

// CLI definition and global flags.
type CLI struct {
	Config      string           `short:"c" help:"Configuration file path" default:"photobuilder.yaml" type:"path"`
	Verbose     bool             `short:"v" help:"Enable debug logging"`
	LogJSON     bool             `name:"log-json" help:"Log as JSON instead of text"`
	MetricsFile string           `name:"metrics-file" help:"Write Prometheus metrics in text format to this file on exit" type:"path"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	Scan    ScanCmd    `cmd:"" help:"Scan the source directory and refresh the manifest"`
	Images  ImagesCmd  `cmd:"" help:"Generate missing or stale image variants"`
	Render  RenderCmd  `cmd:"" help:"Render HTML pages from the manifest"`
	Build   BuildCmd   `cmd:"" help:"Scan, process images and render in one run"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild on source changes"`
	Serve   ServeCmd   `cmd:"" help:"Serve the output directory locally"`
	History HistoryCmd `cmd:"" help:"Show recent stage runs"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing and sets up logging once.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if c.LogJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	g.Logger = slog.New(handler)
	slog.SetDefault(g.Logger)
	return nil
}

// newService wires a build service for cfg. The returned cleanup closes the
// history database.
func newService(cfg *config.Config, g *Global) (*build.Service, func(), error) {
	snap := cfg.Snapshot()
	rec := g.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	opts := []build.Option{
		build.WithLogger(g.Logger),
		build.WithRecorder(rec),
		build.WithProgress(progress.NewLogSink(g.Logger)),
	}
	cleanup := func() {}
	if cfg.History.IsEnabled() {
		h, err := history.Open(history.Path(snap.CacheDir))
		if err != nil {
			return nil, nil, errors.WrapError(err, errors.CategoryFileSystem, "open history database").
				WithContext("path", history.Path(snap.CacheDir)).Build()
		}
		opts = append(opts, build.WithHistory(h))
		cleanup = func() {
			if err := h.Close(); err != nil {
				g.Logger.Warn("Failed to close history database", logfields.Error(err))
			}
		}
	}
	return build.New(snap, opts...), cleanup, nil
}

// report prints a one-line summary and converts a failed result into a
// classified error, so the exit code reflects the failing stage.
func report(g *Global, res *build.Result) error {
	status := "ok"
	if !res.Success {
		status = "FAILED"
	}
	_, _ = fmt.Fprintf(g.Out, "%s %s: %s (%s)\n", res.Stage, status, res.Message, res.Duration.Round(time.Millisecond))
	if res.Success {
		return nil
	}

	stage, message := res.Stage, res.Message
	if stage == build.StageBuild {
		if s, m, ok := strings.Cut(res.Message, ": "); ok {
			stage, message = s, m
		}
	}
	var b *errors.ErrorBuilder
	switch stage {
	case scan.StageName:
		b = errors.ScanError(message)
	case variants.StageName:
		b = errors.ImageError(message)
	case render.StageName:
		b = errors.RenderError(message)
	default:
		b = errors.InternalError(message)
	}
	return b.Fatal().WithContext("run_id", res.RunID).WithContext("stage", res.Stage).Build()
}

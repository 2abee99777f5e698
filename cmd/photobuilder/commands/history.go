package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/photobuilder/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Stage string `help:"Only show runs of this stage (scan, images, render, build)"`
	Limit int    `short:"n" help:"Number of runs to show" default:"20"`
	RunID string `name:"run" help:"Show every stage of one run id"`
	Last  bool   `name:"last-success" help:"Show the newest successful run of --stage (default build)"`
}

func (h *HistoryCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if !cfg.History.IsEnabled() {
		return errors.ValidationError("history is disabled in the configuration").Build()
	}
	store, err := history.Open(history.Path(cfg.CacheDir))
	if err != nil {
		return errors.FileSystemError("open history database").WithCause(err).
			WithContext("path", history.Path(cfg.CacheDir)).Build()
	}
	defer func() { _ = store.Close() }()

	var runs []history.Run
	switch {
	case h.Last:
		stage := h.Stage
		if stage == "" {
			stage = "build"
		}
		run, ok, lerr := store.LastSuccess(ctx, stage)
		if lerr != nil {
			return lerr
		}
		if !ok {
			return errors.NotFoundError("no successful run recorded").WithContext("stage", stage).Build()
		}
		runs = []history.Run{run}
	case h.RunID != "":
		runs, err = store.ByRunID(ctx, h.RunID)
		if err == nil && len(runs) == 0 {
			return errors.NotFoundError("unknown run id").WithContext("run", h.RunID).Build()
		}
	default:
		runs, err = store.Recent(ctx, h.Stage, h.Limit)
	}
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(g.Out, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tRUN\tSTAGE\tRESULT\tDURATION\tMESSAGE")
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), shortID(r.RunID), r.Stage, result,
			r.Duration.Round(time.Millisecond), r.Message)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

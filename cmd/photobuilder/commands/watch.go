package commands

import (
	"context"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/build"
	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/preview"
	"git.home.luguber.info/inful/photobuilder/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Debounce     time.Duration `help:"Quiet window before a rebuild (overrides watch.debounce)"`
	RebuildEvery time.Duration `name:"rebuild-every" help:"Also rebuild on this interval (overrides watch.rebuild_every)"`
	Serve        string        `help:"Serve the output on this address while watching, e.g. 127.0.0.1:1313"`
	NoInitial    bool          `name:"no-initial" help:"Skip the build at startup"`
}

func (w *WatchCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	svc, cleanup, err := newService(cfg, g)
	if err != nil {
		return err
	}
	// Reloads replace the service; every one of them is closed on exit.
	cleanups := []func(){cleanup}
	defer func() {
		for _, c := range cleanups {
			c()
		}
	}()

	if !w.NoInitial {
		res, err := svc.Run(ctx, false)
		if err != nil {
			return err
		}
		_ = report(g, res)
	}

	debounce := cfg.Watch.Debounce
	if w.Debounce > 0 {
		debounce = w.Debounce
	}
	every := cfg.Watch.RebuildEvery
	if w.RebuildEvery > 0 {
		every = w.RebuildEvery
	}

	reload := func() (watch.Builder, error) {
		next, err := config.Load(root.Config)
		if err != nil {
			return nil, err
		}
		s, c, err := newService(next, g)
		if err != nil {
			return nil, err
		}
		cleanups = append(cleanups, c)
		return s, nil
	}

	watcher, err := watch.New(cfg.Source, svc,
		watch.WithDebounce(debounce),
		watch.WithRebuildEvery(every),
		watch.WithRetry(cfg.Watch.RetryPolicy()),
		watch.WithIgnore(cfg.Output, cfg.CacheDir),
		watch.WithConfigFile(root.Config, reload),
		watch.WithLogger(g.Logger),
		watch.WithOnBuild(func(_ watch.Kind, res *build.Result) { _ = report(g, res) }),
	)
	if err != nil {
		return err
	}

	if w.Serve == "" {
		return watcher.Run(ctx)
	}

	srv := preview.New(cfg.Output, preview.WithMetrics(g.Registry), preview.WithLogger(g.Logger))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe(ctx, w.Serve)
		cancel()
	}()

	err = watcher.Run(ctx)
	cancel()
	if serr := <-srvErr; serr != nil {
		g.Logger.Error("Preview server failed", logfields.Error(serr))
		if err == nil {
			err = serr
		}
	}
	return err
}

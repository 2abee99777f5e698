package commands

import (
	"context"

	"git.home.luguber.info/inful/photobuilder/internal/build"
	"git.home.luguber.info/inful/photobuilder/internal/config"
)

// ScanCmd implements the 'scan' command.
type ScanCmd struct{}

func (c *ScanCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	return runStage(ctx, g, root, func(ctx context.Context, svc *build.Service) (*build.Result, error) {
		return svc.Scan(ctx)
	})
}

// ImagesCmd implements the 'images' command.
type ImagesCmd struct {
	Force bool `short:"f" help:"Regenerate every variant, ignoring the cache"`
}

func (c *ImagesCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	return runStage(ctx, g, root, func(ctx context.Context, svc *build.Service) (*build.Result, error) {
		return svc.ProcessImages(ctx, c.Force)
	})
}

// RenderCmd implements the 'render' command.
type RenderCmd struct{}

func (c *RenderCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	return runStage(ctx, g, root, func(ctx context.Context, svc *build.Service) (*build.Result, error) {
		return svc.Render(ctx)
	})
}

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Force bool `short:"f" help:"Regenerate every variant, ignoring the cache"`
}

func (c *BuildCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	return runStage(ctx, g, root, func(ctx context.Context, svc *build.Service) (*build.Result, error) {
		return svc.Run(ctx, c.Force)
	})
}

func runStage(ctx context.Context, g *Global, root *CLI, fn func(context.Context, *build.Service) (*build.Result, error)) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	svc, cleanup, err := newService(cfg, g)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	return report(g, res)
}

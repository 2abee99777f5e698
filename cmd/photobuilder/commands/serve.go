package commands

import (
	"context"

	"git.home.luguber.info/inful/photobuilder/internal/config"
	"git.home.luguber.info/inful/photobuilder/internal/preview"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `short:"a" help:"Listen address" default:"127.0.0.1:1313"`
}

func (s *ServeCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	srv := preview.New(cfg.Output, preview.WithMetrics(g.Registry), preview.WithLogger(g.Logger))
	return srv.ListenAndServe(ctx, s.Addr)
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/photobuilder/cmd/photobuilder/commands"
	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/metrics"
	"git.home.luguber.info/inful/photobuilder/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &commands.CLI{}
	global := commands.NewGlobal()
	k := kong.Parse(cli,
		kong.Name("photobuilder"),
		kong.Description("Static photo portfolio generator."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	err := k.Run(cli)

	if cli.MetricsFile != "" {
		if werr := metrics.WriteTextfile(global.Registry, cli.MetricsFile); werr != nil {
			slog.Warn("Failed to write metrics file", logfields.Path(cli.MetricsFile), logfields.Error(werr))
		}
	}
	return errors.NewCLIErrorAdapter(cli.Verbose, global.Logger).Report(err)
}

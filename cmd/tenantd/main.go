package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/tenantgate/cmd/tenantd/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug       bool `help:"Enable debug mode." env:"TENANTGATE_DEBUG"`
		Version     kong.VersionFlag
		Tracing     bool    `help:"Enable OpenTelemetry tracing and metrics export." env:"TENANTGATE_TRACING"`
		SampleRatio float64 `help:"Fraction of traces sampled when tracing is enabled." default:"1.0" env:"TENANTGATE_TRACE_SAMPLE_RATIO"`

		Store commands.StoreFlags `embed:""`

		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations"`
		Resolve commands.ResolveCmd `cmd:"" help:"Resolve the tenant identity of a principal"`
		Check   commands.CheckCmd   `cmd:"" help:"Check whether an organization may create a resource"`
		Watch   commands.WatchCmd   `cmd:"" help:"Consume identity provider session events from NATS"`
		Token   commands.TokenCmd   `cmd:"" help:"Issue an HMAC signed access token for local testing"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:       cli.Debug,
		Version:     version,
		Tracing:     cli.Tracing,
		SampleRatio: cli.SampleRatio,
		Store:       cli.Store,
	})
	cmd.FatalIfErrorf(err)
}

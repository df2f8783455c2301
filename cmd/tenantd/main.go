package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/tenantd/cmd/tenantd/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"TENANTD_DEBUG"`
		Version kong.VersionFlag
		Serve   commands.ServeCmd   `cmd:"" help:"Run the organization API server"`
		Recover commands.RecoverCmd `cmd:"" help:"Run one recovery pass over the store and exit"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Description("Provision and manage organizations with isolated document partitions."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}

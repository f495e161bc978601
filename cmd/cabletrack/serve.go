package main

import (
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/internal/migration"
	"github.com/smallbiznis/cabletrack/internal/observability"
	"github.com/smallbiznis/cabletrack/internal/scheduler"
	"github.com/smallbiznis/cabletrack/internal/server"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				fx.Provide(RegisterSnowflake),
				db.Module,
				clock.Module,
				migration.Module,
				server.Module,
				scheduler.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

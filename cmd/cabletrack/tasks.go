package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabletrack/internal/audit"
	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/internal/migration"
	"github.com/smallbiznis/cabletrack/internal/observability"
	"github.com/smallbiznis/cabletrack/internal/seed"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const taskTimeout = 5 * time.Minute

// taskDeps is what the one-shot maintenance commands need; no HTTP server
// and no event workers are started.
type taskDeps struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	GenID  *snowflake.Node
	Clock  clock.Clock
	Audit  auditdomain.Service
}

func runTask(ctx context.Context, fn func(context.Context, taskDeps) error) error {
	var deps taskDeps
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.LoggerModule,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		audit.Module,
		fx.Populate(&deps),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	return fn(ctx, deps)
}

func newMigrateCommand() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), func(ctx context.Context, d taskDeps) error {
				sqlDB, err := d.DB.DB()
				if err != nil {
					return err
				}
				if err := migration.RunMigrations(sqlDB, d.Config.DBType); err != nil {
					return err
				}
				d.Log.Info("migrations applied", zap.String("dialect", d.Config.DBType))
				return nil
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), func(ctx context.Context, d taskDeps) error {
				sqlDB, err := d.DB.DB()
				if err != nil {
					return err
				}
				if err := migration.RollbackMigrations(sqlDB, d.Config.DBType, steps); err != nil {
					return err
				}
				d.Log.Info("migrations rolled back", zap.Int("steps", steps))
				return nil
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func newSeedCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create users that do not exist yet",
		Long:  "Creates the demo users, or the users listed in a YAML file. Users whose username or email already exists are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			users := seed.DefaultUsers()
			if file != "" {
				loaded, err := seed.LoadUsers(file)
				if err != nil {
					return err
				}
				users = loaded
			}

			return runTask(cmd.Context(), func(ctx context.Context, d taskDeps) error {
				created, err := seed.EnsureUsers(ctx, d.DB, d.GenID, users)
				if err != nil {
					return err
				}
				d.Log.Info("seed complete", zap.Strings("created", created), zap.Int("skipped", len(users)-len(created)))
				fmt.Fprintf(cmd.OutOrStdout(), "created %d of %d users\n", len(created), len(users))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a top level users list")
	return cmd
}

func newBackfillArchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-archive",
		Short: "Reconcile archived tickets written before soft delete metadata existed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), func(ctx context.Context, d taskDeps) error {
				res, err := seed.BackfillArchive(ctx, d.DB, d.Audit, d.Clock.Now())
				if err != nil {
					return err
				}
				d.Log.Info("archive backfill complete", zap.Int64("stamped", res.Stamped), zap.Int64("normalized", res.Normalized))
				fmt.Fprintf(cmd.OutOrStdout(), "stamped %d, normalized %d\n", res.Stamped, res.Normalized)
				return nil
			})
		},
	}
}

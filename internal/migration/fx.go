package migration

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/internal/ratelimit"
	"github.com/smallbiznis/cabletrack/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	bootstrapLockKey = "cabletrack:bootstrap:lock"
	bootstrapLockTTL = 2 * time.Minute
)

type bootstrapParams struct {
	fx.In

	DB     *gorm.DB
	Config config.Config
	Log    *zap.Logger
	GenID  *snowflake.Node
	Locker *ratelimit.Locker `optional:"true"`
}

var Module = fx.Module("migrations",
	fx.Invoke(bootstrap),
)

// bootstrap migrates and seeds before the server starts. Replicas sharing
// redis take turns; without redis golang-migrate's own lock serialises them.
func bootstrap(p bootstrapParams) error {
	log := p.Log.Named("bootstrap")

	err := p.Locker.Do(context.Background(), bootstrapLockKey, bootstrapLockTTL, func(ctx context.Context) error {
		if p.Config.Bootstrap.RunMigrations {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB, p.Config.DBType); err != nil {
				return err
			}
			log.Info("migrations applied", zap.String("dialect", p.Config.DBType))
		}

		if p.Config.Bootstrap.SeedDemoUsers {
			created, err := seed.EnsureUsers(ctx, p.DB, p.GenID, seed.DefaultUsers())
			if err != nil {
				return err
			}
			if len(created) > 0 {
				log.Info("demo users seeded", zap.Strings("usernames", created))
			}
		}
		return nil
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		log.Info("bootstrap already running elsewhere, skipping")
		return nil
	}
	return err
}

package migration

import (
	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/organization/domain"
	"github.com/loomhq/loom/internal/seed"
	userdomain "github.com/loomhq/loom/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, seeder *seed.Seeder) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres deployments (local sqlite, mysql) pick up the
			// schema from the models instead of the SQL migrations.
			if err := conn.AutoMigrate(
				&userdomain.User{},
				&domain.OrganizationRow{},
				&domain.MembershipRow{},
				&domain.EventRow{},
			); err != nil {
				return err
			}
		}

		if cfg.BootstrapDefault {
			return seeder.EnsureDefaultOrg(cfg.DefaultOrgSlug)
		}
		return nil
	}),
)

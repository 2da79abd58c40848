package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/config"
)

// Module runs schema migrations during application startup.
// Postgres deployments use the embedded SQL migrations; other dialects
// fall back to gorm AutoMigrate, which keeps local sqlite setups working.
var Module = fx.Module("migration",
	fx.Invoke(Run),
)

type Params struct {
	fx.In

	Cfg config.Config
	DB  *gorm.DB
	Log *zap.Logger
}

func Run(p Params, models AutoMigrateModels) error {
	log := p.Log.Named("migration")

	if p.Cfg.DBType == "postgres" {
		sqlDB, err := p.DB.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("schema migrations applied")
		return nil
	}

	if err := p.DB.AutoMigrate(models.Models...); err != nil {
		return err
	}
	log.Info("schema auto-migrated", zap.String("db_type", p.Cfg.DBType))
	return nil
}

// AutoMigrateModels carries the model set used by non-postgres dialects.
type AutoMigrateModels struct {
	Models []any
}

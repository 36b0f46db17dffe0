package migration

import (
	"github.com/smallbiznis/rigmarket/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			log.Warn("skipping embedded migrations for non-postgres database", zap.String("type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	}),
)

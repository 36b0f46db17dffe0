package db

import (
	"context"
	"fmt"

	"github.com/smallbiznis/rigmarket/internal/config"
	obslogger "github.com/smallbiznis/rigmarket/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(ConfigFrom),
	fx.Provide(New),
)

// New opens the shared connection pool and installs tracing and pool metrics.
func New(lc fx.Lifecycle, cfg Config, appCfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 obslogger.NewGormLogger(log.Named("gorm"), obslogger.DefaultGormLoggerConfig()),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, fmt.Errorf("install otelgorm: %w", err)
	}
	if cfg.Type != "sqlite" {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          cfg.Name,
			RefreshInterval: 15,
			StartServer:     false,
			Labels: map[string]string{
				"service": appCfg.AppName,
				"env":     appCfg.Environment,
			},
		})); err != nil {
			return nil, fmt.Errorf("install gorm prometheus: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return sqlDB.PingContext(ctx)
			},
			OnStop: func(context.Context) error {
				log.Info("closing database pool")
				return sqlDB.Close()
			},
		})
	}

	log.Info("database connected",
		zap.String("type", cfg.Type),
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name),
	)
	return conn, nil
}

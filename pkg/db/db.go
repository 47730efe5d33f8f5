package db

import (
	"context"
	"fmt"

	"github.com/smallbiznis/rentledger/internal/config"
	obslogger "github.com/smallbiznis/rentledger/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprom "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(NewDB),
)

// NewDB opens the configured database and closes the pool on shutdown.
func NewDB(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	conn, err := Open(ConfigFrom(cfg), log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("closing database pool")
			return sqlDB.Close()
		},
	})

	log.Info("database connected",
		zap.String("type", cfg.DBType),
		zap.String("host", cfg.DBHost),
		zap.String("name", cfg.DBName),
	)
	return conn, nil
}

// Open dials the database, tunes the pool and installs the tracing and
// metrics plugins.
func Open(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	logCfg := obslogger.DefaultGormLoggerConfig()
	logCfg.Expected = IsDuplicateKeyErr
	if cfg.LogQueries {
		logCfg.Level = gormlogger.Info
	}

	conn, err := gorm.Open(dialect, &gorm.Config{
		Logger: obslogger.NewGormLogger(log, logCfg),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Type, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.MaxIdleConn >= 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, fmt.Errorf("install otelgorm: %w", err)
	}
	if err := conn.Use(gormprom.New(gormprom.Config{
		DBName:          cfg.Name,
		RefreshInterval: 15,
	})); err != nil {
		return nil, fmt.Errorf("install gorm prometheus: %w", err)
	}

	return conn, nil
}

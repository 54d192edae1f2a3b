package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	obslogger "github.com/smallbiznis/fedbill/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/plugin/prometheus"
)

const maxConnectElapsed = 30 * time.Second

// Open connects to the configured database, retrying with exponential
// backoff until maxConnectElapsed has passed.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxConnectElapsed

	var conn *gorm.DB
	connect := func() error {
		c, err := gorm.Open(dialect, &gorm.Config{
			Logger: obslogger.NewGormLogger(log, cfg.SlowQuery),
		})
		if err != nil {
			return err
		}
		sqlDB, err := c.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("database not ready, retrying", zap.String("type", cfg.Type), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, ierr.WithError(err).WithHintf("failed to connect to %s database", cfg.Type).Mark(ierr.ErrDatabase)
	}

	if err := configurePool(conn, cfg); err != nil {
		return nil, err
	}
	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, ierr.WithError(err).WithHint("failed to install tracing plugin").Mark(ierr.ErrInternal)
	}
	if cfg.MetricsEnabled {
		if err := conn.Use(prometheus.New(prometheus.Config{
			DBName:          cfg.Name,
			RefreshInterval: 15,
		})); err != nil {
			return nil, ierr.WithError(err).WithHint("failed to install metrics plugin").Mark(ierr.ErrInternal)
		}
	}

	log.Info("database connected", zap.String("type", cfg.Type), zap.Bool("metrics", cfg.MetricsEnabled))
	return conn, nil
}

func configurePool(conn *gorm.DB, cfg Config) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
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
	return nil
}

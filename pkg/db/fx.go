package db

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fedbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(
		FromAppConfig,
		provideDB,
		provideSnowflake,
	),
)

func provideDB(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*gorm.DB, error) {
	conn, err := Open(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return conn, nil
}

// provideSnowflake derives the node id from the instance name so replicas
// generate disjoint tenant ids.
func provideSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(NodeID(cfg.AppName + "/" + cfg.Environment + "/" + hostname()))
}

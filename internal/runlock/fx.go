package runlock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fedbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("runlock",
	fx.Provide(Provide),
)

// Provide builds a Locker when REDIS_ADDR is configured; otherwise runners
// run every tick locally.
func Provide(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Locker {
	if !cfg.SharedStorage() {
		return nil
	}

	l := New(redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	}), cfg.RunnerLockTTL, log)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return l.Close()
		},
	})
	return l
}

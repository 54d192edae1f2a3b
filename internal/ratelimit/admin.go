package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fedbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyAdminClient = "fedbill:ratelimit:admin:%s"

// AdminLimiter throttles admin API calls per client address. A nil limiter
// allows everything.
type AdminLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewAdminLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *AdminLimiter {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" || cfg.RateLimit.Rate <= 0 || cfg.RateLimit.Burst <= 0 {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return newAdminLimiter(NewTokenBucket(client), cfg.RateLimit, log)
}

func newAdminLimiter(bucket *TokenBucket, cfg config.RateLimitConfig, log *zap.Logger) *AdminLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminLimiter{
		bucket: bucket,
		rate:   cfg.Rate,
		burst:  cfg.Burst,
		log:    log.Named("ratelimit.admin"),
	}
}

// Allow reports whether client may issue another admin call. Redis failures
// let the request through.
func (l *AdminLimiter) Allow(ctx context.Context, client string) *RateLimitResult {
	if l == nil || l.bucket == nil {
		return &RateLimitResult{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyAdminClient, strings.TrimSpace(client)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.String("client", client), zap.Error(err))
		return &RateLimitResult{Allowed: true, Limit: l.burst}
	}
	return res
}

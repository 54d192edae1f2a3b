package ratelimit

import (
	"context"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  local refill = (delta / 1000) * rate
  tokens = math.min(burst, tokens + refill)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

-- allowed, remaining tokens (thousandths), ts (milliseconds)
return {allowed, math.floor(tokens * 1000), ts}
`

// TokenBucket is a redis-backed bucket shared by every fedbill replica. The
// refill is computed inside redis from redis TIME so replica clocks do not
// matter.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

// RateLimitResult reports one Allow decision. Remaining is whole tokens.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ierr.NewError("rate limiter not configured").Mark(ierr.ErrInternal)
	}
	if key == "" {
		return nil, ierr.NewError("rate limiter key is empty").Mark(ierr.ErrValidation)
	}
	if rate <= 0 || burst <= 0 {
		return nil, ierr.NewError("rate limiter rate and burst must be positive").Mark(ierr.ErrValidation)
	}

	ttl := bucketTTL(rate, burst)
	res, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("rate limit script").Mark(ierr.ErrInternal)
	}
	if len(res) < 3 {
		return nil, ierr.NewError("invalid rate limit script response").Mark(ierr.ErrInternal)
	}
	return bucketResult(res[0] == 1, float64(res[1])/1000, res[2], rate, burst), nil
}

func bucketResult(allowed bool, remaining float64, tsMillis int64, rate float64, burst int) *RateLimitResult {
	var retryAfter time.Duration
	if !allowed {
		if needed := 1.0 - remaining; needed > 0 {
			retryAfter = time.Duration(needed / rate * float64(time.Second))
		}
	}
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      burst,
		Remaining:  int(remaining),
		ResetTime:  time.UnixMilli(tsMillis).Add(retryAfter),
		RetryAfter: retryAfter,
	}
}

// bucketTTL keeps an idle bucket for twice its full refill time; after that
// a fresh bucket starts full, which is the same state.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

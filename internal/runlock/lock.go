package runlock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"go.uber.org/zap"
)

const keyRunner = "fedbill:runner:%s:%s"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const DefaultTTL = 5 * time.Minute

// Locker hands out per-tick leases so only one replica runs a plan's runner
// at a time. A nil Locker grants every lease.
type Locker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	log    *zap.Logger
}

func New(client *redis.Client, ttl time.Duration, log *zap.Logger) *Locker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
		log:    log.Named("runlock"),
	}
}

// Key is the redis key guarding one runner of one plan.
func Key(plan, runner string) string {
	return fmt.Sprintf(keyRunner, strings.TrimSpace(plan), strings.TrimSpace(runner))
}

// TryLock takes the lease for key. ok is false when another holder has it.
func (l *Locker) TryLock(ctx context.Context, key string) (token string, ok bool, err error) {
	if l == nil || l.client == nil {
		return "", true, nil
	}
	if key == "" {
		return "", false, ierr.NewError("lock key is empty").Mark(ierr.ErrInternal)
	}

	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, ierr.WithError(err).WithHint("runner lock unavailable").Mark(ierr.ErrInternal)
	}
	return token, ok, nil
}

// Release drops the lease if token still owns it.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

func (l *Locker) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

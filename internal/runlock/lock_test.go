package runlock

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "fedbill:runner:gold:payment", Key(" gold ", "payment"))
}

func TestNilLockerGrantsEveryLease(t *testing.T) {
	var l *Locker
	token, ok, err := l.TryLock(context.Background(), Key("gold", "payment"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, l.Release(context.Background(), "k", token))
	assert.NoError(t, l.Close())
}

func TestNewWithoutClientReturnsNil(t *testing.T) {
	assert.Nil(t, New(nil, time.Second, zap.NewNop()))
}

func TestTryLockUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := New(client, 0, zap.NewNop())
	defer l.Close()

	_, ok, err := l.TryLock(context.Background(), Key("gold", "payment"))
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, ierr.IsInternal(err))
	assert.Equal(t, DefaultTTL, l.ttl)
}

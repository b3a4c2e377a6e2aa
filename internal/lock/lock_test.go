package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	l := NewLocal(0)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "medication:m1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, l.slots, "released keys must not linger")
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "medication:a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := l.Lock(ctx, "medication:b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_WaitTimeout(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "medication:m1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "medication:m1")
	assert.ErrorIs(t, err, apperrors.ErrLockTimeout)

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(ctx, "medication:m1")
	require.NoError(t, err)
	again()
}

func TestLocalLocker_CallerCancellation(t *testing.T) {
	l := NewLocal(0)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, apperrors.ErrLockTimeout))
}

func redisURL(t *testing.T) string {
	url := os.Getenv("MEDICAMENTA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MEDICAMENTA_TEST_REDIS_URL not set")
	}
	return url
}

func TestRedisLocker_ExclusiveAndRelease(t *testing.T) {
	url := redisURL(t)
	l, err := NewRedis(url, time.Second, 100*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	key := "test:" + t.Name() + ":" + time.Now().Format(time.RFC3339Nano)

	unlock, err := l.Lock(ctx, key)
	require.NoError(t, err)

	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, apperrors.ErrLockTimeout)

	unlock()
	again, err := l.Lock(ctx, key)
	require.NoError(t, err)
	again()
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis("not-a-url", time.Second, time.Second, zap.NewNop())
	assert.Error(t, err)
}

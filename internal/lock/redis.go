package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const retryInterval = 50 * time.Millisecond

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes locks shared by every process pointed at the same Redis
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	wait   time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedis connects to url and verifies the connection. ttl bounds how long a crashed
// holder keeps the key; wait bounds how long Lock retries.
func NewRedis(url string, ttl, wait time.Duration, logger *zap.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, wait: wait, prefix: "medicamenta:lock:", logger: logger}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, waitError(ctx.Err())
		}
	}
}

func (l *RedisLocker) unlocker(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.rdb, []string{redisKey}, token).Int()
	if err != nil {
		l.logger.Warn("Failed to release lock", zap.String("key", redisKey), zap.Error(err))
		return
	}
	if n == 0 {
		l.logger.Warn("Lock expired before release", zap.String("key", redisKey), zap.Duration("ttl", l.ttl))
	}
}

func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker guards a due-check pass so only one runs at a time.
type Locker interface {
	// Acquire returns ok=false without error when someone else holds the lock.
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker coordinates passes across server instances. The TTL bounds how
// long a crashed holder can block the next pass.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(), bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
			zap.L().Warn("Failed to release scheduler lock", zap.String("key", l.key), zap.Error(err))
		}
	}
	return release, true, nil
}

// LocalLocker serializes passes within one process.
type LocalLocker struct {
	mu sync.Mutex
}

func (l *LocalLocker) Acquire(ctx context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const lockRetryInterval = 50 * time.Millisecond

type Locker struct {
	client *redis.Client
	script *redis.Script
	log    *zap.Logger
}

func NewLocker(client *redis.Client, log *zap.Logger) *Locker {
	if client == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		log:    log.Named("ratelimit.lock"),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// WithLock runs fn while holding key. The lock is a hint that serializes
// concurrent callers for up to ttl; when it cannot be taken in time, or
// Redis is unavailable, fn still runs and the database constraint decides.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}

	deadline := time.Now().Add(ttl)
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			l.log.Warn("lock unavailable, continuing without it", zap.String("key", key), zap.Error(err))
			return fn(ctx)
		}
		if ok {
			defer func() {
				if err := l.Release(context.WithoutCancel(ctx), key, token); err != nil {
					l.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
				}
			}()
			return fn(ctx)
		}
		if time.Now().After(deadline) {
			l.log.Warn("lock wait timed out, continuing without it", zap.String("key", key))
			return fn(ctx)
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

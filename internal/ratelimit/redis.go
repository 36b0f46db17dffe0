package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/rigmarket/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient returns nil when REDIS_ADDR is unset; locks and limits
// degrade to no-ops in that case.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		log.Info("redis not configured, distributed locks and rate limits disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/rigmarket/internal/config"
)

const keyCheckoutBuyer = "checkout:buyer:%s"

// CheckoutLimiter throttles checkout session creation per buyer.
type CheckoutLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewCheckoutLimiter(cfg config.Config, client *redis.Client) (*CheckoutLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.CheckoutRate <= 0 || limitCfg.CheckoutBurst <= 0 {
		return nil, errors.New("checkout rate limit must be positive")
	}

	return &CheckoutLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.CheckoutRate,
		burst:   limitCfg.CheckoutBurst,
	}, nil
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *CheckoutLimiter) AllowBuyer(ctx context.Context, buyerID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, CheckoutBuyerKey(buyerID), l.rate, l.burst)
}

func CheckoutBuyerKey(buyerID string) string {
	return fmt.Sprintf(keyCheckoutBuyer, strings.ToLower(strings.TrimSpace(buyerID)))
}

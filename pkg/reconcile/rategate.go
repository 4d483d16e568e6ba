package reconcile

import (
	"context"
	"time"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/redis"
)

// RateGate is consulted before a page is fetched and told when the platform throttled us.
type RateGate interface {
	Allow(ctx context.Context, pageID string) (bool, time.Duration, error)
	Block(ctx context.Context, pageID string, d time.Duration) error
}

// RedisRateGate limits platform calls per page with a sliding window.
type RedisRateGate struct {
	limiter *redis.RateLimiter
	limit   int64
	window  time.Duration
}

// NewRedisRateGate allows limit calls per page within window.
func NewRedisRateGate(limiter *redis.RateLimiter, limit int64, window time.Duration) *RedisRateGate {
	return &RedisRateGate{limiter: limiter, limit: limit, window: window}
}

func (g *RedisRateGate) Allow(ctx context.Context, pageID string) (bool, time.Duration, error) {
	res, err := g.limiter.Allow(ctx, "page:"+pageID, g.limit, g.window)
	if err != nil {
		return false, 0, err
	}
	if !res.Allowed {
		metrics.RateLimitHits.WithLabelValues("page").Inc()
	}
	return res.Allowed, res.RetryIn, nil
}

// Block rejects calls for the page until d has passed.
func (g *RedisRateGate) Block(ctx context.Context, pageID string, d time.Duration) error {
	return g.limiter.BlockFor(ctx, "page:"+pageID, d)
}

package conversion

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payapp/internal/core/money"
)

// RateCache stores rates as strings. A miss returns ok=false and a nil error.
type RateCache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type RedisRateCache struct {
	client *redis.Client
}

func NewRedisRateCache(client *redis.Client) *RedisRateCache {
	return &RedisRateCache{client: client}
}

func (c *RedisRateCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if goerrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisRateCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedProvider memoises rates from another provider. Cache failures are logged
// and fall through to the wrapped provider; unsupported pairs are never cached.
type CachedProvider struct {
	next   Provider
	cache  RateCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedProvider(next Provider, cache RateCache, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(from, to money.Currency) string {
	return fmt.Sprintf("payapp:rate:%s:%s", from, to)
}

func (p *CachedProvider) Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	key := cacheKey(from, to)

	if cached, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("rate cache read failed", "key", key, "error", err)
	} else if ok {
		if rate, err := decimal.NewFromString(cached); err == nil {
			return rate, nil
		}
		p.logger.Warn("rate cache holds a malformed value", "key", key, "value", cached)
	}

	rate, err := p.next.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	if err := p.cache.Set(ctx, key, rate.String(), p.ttl); err != nil {
		p.logger.Warn("rate cache write failed", "key", key, "error", err)
	}

	return rate, nil
}

package coingecko

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// PriceCache stores resolved USD prices keyed by feed id. A miss is
// reported via ok=false, never as an error.
type PriceCache interface {
	Get(ctx context.Context, feedID string) (decimal.Decimal, bool)
	Set(ctx context.Context, feedID string, price decimal.Decimal)
}

// memoryCache is the default per-run cache: prices resolved once are
// reused for the rest of the run.
type memoryCache struct {
	prices map[string]decimal.Decimal
}

func newMemoryCache() *memoryCache {
	return &memoryCache{prices: make(map[string]decimal.Decimal)}
}

func (m *memoryCache) Get(_ context.Context, feedID string) (decimal.Decimal, bool) {
	p, ok := m.prices[feedID]
	return p, ok
}

func (m *memoryCache) Set(_ context.Context, feedID string, price decimal.Decimal) {
	m.prices[feedID] = price
}

func (m *memoryCache) len() int {
	return len(m.prices)
}

// RedisCache shares resolved prices across runs with a TTL, so a
// scheduler running the pipeline on a short cadence does not burn the
// oracle's rate budget re-resolving the same tokens.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisCacheOpts struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisCache(opts RedisCacheOpts) *RedisCache {
	if opts.TTL == 0 {
		opts.TTL = time.Minute
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl: opts.TTL,
	}
}

func (r *RedisCache) Get(ctx context.Context, feedID string) (decimal.Decimal, bool) {
	val, err := r.client.Get(ctx, priceKey(feedID)).Result()
	if err != nil {
		// redis.Nil and transport errors are both treated as misses;
		// the oracle is the fallback either way.
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func (r *RedisCache) Set(ctx context.Context, feedID string, price decimal.Decimal) {
	_ = r.client.Set(ctx, priceKey(feedID), price.String(), r.ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func priceKey(feedID string) string {
	return fmt.Sprintf("price:usd:%s", feedID)
}

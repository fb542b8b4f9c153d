package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// missing marks a cached "no price" answer.
const missing = "-"

// RedisConfig holds connection parameters for the price cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// CachedFeed memoizes an upstream Feed in Redis, keyed by symbol and
// calendar day of asOf. Historical closes do not change, so entries only
// expire to bound memory.
type CachedFeed struct {
	next   Feed
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	log    *zap.Logger
	group  singleflight.Group
}

var _ Feed = (*CachedFeed)(nil)

func NewCachedFeed(next Feed, rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *CachedFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedFeed{next: next, rdb: rdb, ttl: ttl, prefix: "papertrade:price:", log: log}
}

func (c *CachedFeed) key(symbol string, asOf time.Time) string {
	return c.prefix + symbol + ":" + asOf.UTC().Format("2006-01-02")
}

func (c *CachedFeed) Price(ctx context.Context, symbol string, asOf time.Time) (decimal.Decimal, bool, error) {
	key := c.key(symbol, asOf)

	v, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if v == missing {
			return decimal.Zero, false, nil
		}
		if px, perr := decimal.NewFromString(v); perr == nil {
			return px, true, nil
		}
		c.log.Warn("discarding bad cached price", zap.String("key", key), zap.String("value", v))
	case errors.Is(err, redis.Nil):
	default:
		// A cache outage degrades to upstream lookups.
		c.log.Warn("price cache read failed", zap.String("key", key), zap.Error(err))
	}

	type answer struct {
		px decimal.Decimal
		ok bool
	}
	// The lookup is shared, so one caller cancelling must not fail the rest.
	shared := context.WithoutCancel(ctx)
	res, err, _ := c.group.Do(key, func() (any, error) {
		px, ok, err := c.next.Price(shared, symbol, asOf)
		if err != nil {
			return nil, err
		}
		val := missing
		if ok {
			val = px.String()
		}
		if err := c.rdb.Set(shared, key, val, c.ttl).Err(); err != nil {
			c.log.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
		}
		return answer{px: px, ok: ok}, nil
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	a := res.(answer)
	return a.px, a.ok, nil
}

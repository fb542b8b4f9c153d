package market

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rustyeddy/papertrade/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pricesCSV = `date,symbol,close
2024-01-02,AAPL,185.64
2024-01-03,aapl,184.25
2024-01-05,AAPL,181.18
2024-01-02,MSFT,370.87
`

func TestSeriesLatestAtOrBefore(t *testing.T) {
	t.Parallel()

	s, err := LoadCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Symbols())

	ctx := context.Background()
	tests := []struct {
		asOf string
		want string
		ok   bool
	}{
		{"2024-01-01T23:59:59Z", "", false},
		{"2024-01-02T15:59:59Z", "", false},
		{"2024-01-02T16:00:00Z", "185.64", true},
		{"2024-01-04T23:59:59Z", "184.25", true},
		{"2024-02-01T00:00:00Z", "181.18", true},
	}
	for _, tt := range tests {
		t.Run(tt.asOf, func(t *testing.T) {
			at, _ := time.Parse(time.RFC3339, tt.asOf)
			px, ok, err := s.Price(ctx, "AAPL", at)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, px.String())
			}
		})
	}

	_, ok, err := s.Price(ctx, "TSLA", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeriesAddOverwritesSameTime(t *testing.T) {
	t.Parallel()

	s := NewSeries()
	at := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	s.Add("X", at.Add(24*time.Hour), money.MustParse("2"))
	s.Add("X", at, money.MustParse("1"))
	s.Add("X", at, money.MustParse("1.5"))

	px, ok, err := s.Price(context.Background(), "X", at)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.5", px.String())
}

func TestSeriesCloses(t *testing.T) {
	t.Parallel()

	s, err := LoadCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)

	got := s.Closes("AAPL", time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	require.Len(t, got, 2)
	assert.Equal(t, "185.64", got[0].String())
	assert.Equal(t, "184.25", got[1].String())
	assert.Empty(t, s.Closes("AAPL", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, s.Closes("TSLA", time.Now()))
}

func TestLoadCSVErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"2024-01-02,AAPL\n",
		"01/02/2024,AAPL,1\n",
		"2024-01-02,AAPL,abc\n",
		"2024-01-02,AAPL,0\n",
	} {
		_, err := LoadCSV(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

// memCmdable serves Get and Set from a map; other commands are not used.
type memCmdable struct {
	redis.Cmdable
	mu     sync.Mutex
	vals   map[string]string
	setErr error
}

func (m *memCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vals[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *memCmdable) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = ctx.Err()
	m.vals[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func TestCachedFeedSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	upstream := FeedFunc(func(uctx context.Context, symbol string, asOf time.Time) (decimal.Decimal, bool, error) {
		calls.Add(1)
		// The caller goes away mid-lookup; the shared lookup carries on.
		cancel()
		if err := uctx.Err(); err != nil {
			return decimal.Zero, false, err
		}
		return money.MustParse("187.5"), true, nil
	})

	mem := &memCmdable{vals: map[string]string{}}
	cf := NewCachedFeed(upstream, mem, time.Hour, nil)
	at := time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC)

	px, ok, err := cf.Price(ctx, "AAPL", at)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "187.5", px.String())
	assert.NoError(t, mem.setErr, "cache write must not see the caller's cancel")
	assert.Equal(t, "187.5", mem.vals[cf.key("AAPL", at)])

	px, ok, err = cf.Price(context.Background(), "AAPL", at)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "187.5", px.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedFeedRedis(t *testing.T) {
	addr := os.Getenv("PAPERTRADE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAPERTRADE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer rdb.Close()

	var calls atomic.Int32
	upstream := FeedFunc(func(ctx context.Context, symbol string, asOf time.Time) (decimal.Decimal, bool, error) {
		calls.Add(1)
		if symbol == "NONE" {
			return decimal.Zero, false, nil
		}
		return money.MustParse("42.10"), true, nil
	})

	cf := NewCachedFeed(upstream, rdb, time.Minute, nil)
	cf.prefix = "papertrade:test:" + t.Name() + ":"
	at := time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC)
	t.Cleanup(func() {
		rdb.Del(ctx, cf.key("AAPL", at), cf.key("NONE", at))
	})

	for i := 0; i < 3; i++ {
		px, ok, err := cf.Price(ctx, "AAPL", at)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "42.1", px.String())

		_, ok, err = cf.Price(ctx, "NONE", at)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, int32(2), calls.Load())

	v, err := rdb.Get(ctx, cf.key("NONE", at)).Result()
	require.NoError(t, err)
	assert.Equal(t, missing, v)
	_, err = rdb.Get(ctx, "papertrade:test:absent").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

package analytics

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the four commands over a map; expirations are
// recorded but not enforced.
type fakeRedis struct {
	vals map[string]string
	ttl  map[string]time.Duration
}

func newFake() *fakeRedis {
	return &fakeRedis{vals: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, exp time.Duration) *redis.BoolCmd {
	if _, ok := f.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = "1"
	f.ttl[key] = exp
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(f.vals[key], 10, 64)
	n++
	f.vals[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, exp time.Duration) *redis.BoolCmd {
	f.ttl[key] = exp
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestVisitsUniquePerDay(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	v := NewVisits(f, "acw")
	day1 := time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)

	first, err := v.Record(ctx, "a", day1)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = v.Record(ctx, "a", day1.Add(30*time.Minute)) // next UTC day
	require.NoError(t, err)
	assert.True(t, first)
	first, err = v.Record(ctx, "a", day1)
	require.NoError(t, err)
	assert.False(t, first)
	_, err = v.Record(ctx, "b", day1)
	require.NoError(t, err)

	n, err := v.Count(ctx, "2026-06-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = v.Count(ctx, "2026-06-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, 48*time.Hour, f.ttl["acw:visit:2026-06-01:a"])
}

func TestVisitsValidation(t *testing.T) {
	v := NewVisits(newFake(), "acw")
	_, err := v.Record(context.Background(), "", time.Now())
	assert.Error(t, err)
	_, err = v.Count(context.Background(), "June 1")
	assert.Error(t, err)
	n, err := v.Count(context.Background(), "2030-01-01")
	require.NoError(t, err)
	assert.Zero(t, n)
}

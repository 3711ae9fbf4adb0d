// Package analytics counts unique daily visitors in Redis.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// markerTTL keeps per-visitor markers past the end of their UTC day.
const markerTTL = 48 * time.Hour

// DayLayout is the day key format.
const DayLayout = "2006-01-02"

// Redis is the subset of *redis.Client the counter uses.
type Redis interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Visits counts each visitor at most once per UTC day.
type Visits struct {
	rdb    Redis
	prefix string
}

// NewVisits returns a counter with keys under prefix (e.g. "acw").
func NewVisits(rdb Redis, prefix string) *Visits {
	return &Visits{rdb: rdb, prefix: prefix}
}

func (v *Visits) markerKey(day, visitor string) string {
	return fmt.Sprintf("%s:visit:%s:%s", v.prefix, day, visitor)
}

func (v *Visits) counterKey(day string) string {
	return fmt.Sprintf("%s:visits:%s", v.prefix, day)
}

// Record counts visitor for the day of now.  It reports whether this was
// the visitor's first visit that day.
func (v *Visits) Record(ctx context.Context, visitor string, now time.Time) (bool, error) {
	if visitor == "" {
		return false, errors.New("analytics: empty visitor id")
	}
	day := now.UTC().Format(DayLayout)
	first, err := v.rdb.SetNX(ctx, v.markerKey(day, visitor), 1, markerTTL).Result()
	if err != nil || !first {
		return false, err
	}
	ck := v.counterKey(day)
	if err := v.rdb.Incr(ctx, ck).Err(); err != nil {
		return true, err
	}
	// counters are kept for a quarter
	_ = v.rdb.Expire(ctx, ck, 90*24*time.Hour).Err()
	return true, nil
}

// Count returns the number of unique visitors on day (YYYY-MM-DD).
func (v *Visits) Count(ctx context.Context, day string) (int64, error) {
	if _, err := time.Parse(DayLayout, day); err != nil {
		return 0, fmt.Errorf("analytics: bad day %q: %w", day, err)
	}
	n, err := v.rdb.Get(ctx, v.counterKey(day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

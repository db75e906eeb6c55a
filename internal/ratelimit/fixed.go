package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed window limiter on top of a ulule/limiter store.
type Fixed struct {
	store limiter.Store
}

// NewMemory keeps counters in process memory, for single instance
// deployments running without Redis.
func NewMemory() Fixed {
	return Fixed{store: memory.NewStore()}
}

// NewRedisFixed shares counters through Redis.
func NewRedisFixed(client *redis.Client, prefix string) (Fixed, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return Fixed{}, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return Fixed{store: store}, nil
}

// Allow counts an event for key against max events per window.
func (f Fixed) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if f.store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	scoped := fmt.Sprintf("%s|%d|%d", key, window.Milliseconds(), max)
	res, err := limiter.New(f.store, rate).Get(ctx, scoped)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}

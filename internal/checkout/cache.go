package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-checkout/internal/common"
	"github.com/noah-isme/backend-checkout/internal/pricing"
	"github.com/noah-isme/backend-checkout/internal/resilience"
)

// QuoteCache stores priced results keyed by catalog and basket contents.
// A nil cache or a cache without a client is a no-op. Calls go through a
// circuit breaker so a failing Redis is skipped instead of retried per quote.
type QuoteCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *resilience.Breaker
}

// NewQuoteCache constructs a cache helper.
func NewQuoteCache(client *redis.Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{
		client:  client,
		ttl:     ttl,
		breaker: resilience.NewBreaker("quote_cache", 5, 0.5, 30*time.Second),
	}
}

// WithBreaker replaces the default breaker.
func (c *QuoteCache) WithBreaker(b *resilience.Breaker) *QuoteCache {
	c.breaker = b
	return c
}

func (c *QuoteCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Key identifies a basket independent of scan order. Pricing only depends on
// the multiset of scans, so any permutation maps to the same key.
func Key(fingerprint string, places int32, basket pricing.Multiset) string {
	ids := make([]string, 0, len(basket))
	for id := range basket {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		parts = append(parts, id, strconv.Itoa(basket[id]))
	}
	return fmt.Sprintf("quote:v1:%s:%d:%s", fingerprint, places, common.Digest(parts...))
}

// Get loads the result stored under key. It reports whether the key existed.
func (c *QuoteCache) Get(ctx context.Context, key string) (pricing.Result, bool, error) {
	var res pricing.Result
	if !c.enabled() {
		return res, false, nil
	}
	var data []byte
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil || data == nil {
		return res, false, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, false, err
	}
	return res, true, nil
}

// Set stores res under key with the configured TTL.
func (c *QuoteCache) Set(ctx context.Context, key string, res pricing.Result) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, data, c.ttl).Err()
	})
}

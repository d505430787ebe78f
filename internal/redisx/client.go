package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// StatusCache stores the JSON body served to clients polling an order.
type StatusCache struct {
	RDB redis.Cmdable
}

func (c *StatusCache) Get(ctx context.Context, orderID string) ([]byte, bool, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *StatusCache) Set(ctx context.Context, orderID string, body []byte) error {
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), body, TTLStatusCache).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

// Marker remembers keys that were already processed.
type Marker struct {
	RDB redis.Cmdable
	TTL time.Duration
}

func (m *Marker) Seen(ctx context.Context, key string) (bool, error) {
	return Exists(ctx, m.RDB, key)
}

func (m *Marker) Mark(ctx context.Context, key string) error {
	return m.RDB.Set(ctx, key, "1", m.TTL).Err()
}

// Claim marks key and reports whether this call was the first to do so.
func (m *Marker) Claim(ctx context.Context, key string) (bool, error) {
	return m.RDB.SetNX(ctx, key, "1", m.TTL).Result()
}

// Release forgets key so the work can be claimed again.
func (m *Marker) Release(ctx context.Context, key string) error {
	return m.RDB.Del(ctx, key).Err()
}

func WebhookKey(requestID string) string {
	return fmt.Sprintf(KeyWebhookApplied, requestID)
}

func DedupKey(service, id string) string {
	return fmt.Sprintf(KeyDedup, service, id)
}

package monitoring

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds an optional ping of the ingest broker.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	if client == nil {
		return
	}
	h.AddCheck(HealthCheck{
		Name:     "redis",
		Timeout:  timeout,
		Optional: true,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	})
}

// AddStoreCheck adds a required check of the moderation and chat store.
func (h *HealthChecker) AddStoreCheck(ping func(ctx context.Context) error, timeout time.Duration) {
	h.AddCheck(HealthCheck{
		Name:    "store",
		Timeout: timeout,
		Check:   ping,
	})
}

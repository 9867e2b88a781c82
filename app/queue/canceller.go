package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Canceller marks pending invocations so workers drop them before execution.
type Canceller struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCanceller constructs a canceller. Marks expire after ttl of inactivity on the set.
func NewCanceller(client *redis.Client, ttl time.Duration) *Canceller {
	return &Canceller{client: client, ttl: ttl}
}

// Cancel marks the invocation as cancelled.
func (c *Canceller) Cancel(ctx context.Context, taskID string) error {
	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, CancelledSetName, taskID)
	if c.ttl > 0 {
		pipe.Expire(ctx, CancelledSetName, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancel %s: %w", taskID, err)
	}
	return nil
}

// IsCancelled reports whether the invocation has been cancelled.
func (c *Canceller) IsCancelled(ctx context.Context, taskID string) (bool, error) {
	cancelled, err := c.client.SIsMember(ctx, CancelledSetName, taskID).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", CancelledSetName, err)
	}
	return cancelled, nil
}

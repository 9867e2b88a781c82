package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const promoteBatch = 100

// claimScript removes a parked task and returns its payload. Only one caller gets it.
var claimScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
	return false
end
local payload = redis.call("HGET", KEYS[2], ARGV[1])
redis.call("HDEL", KEYS[2], ARGV[1])
return payload
`)

// Promoter moves due invocations from the delayed set onto the stream.
type Promoter struct {
	producer *TaskProducer
	interval time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewPromoter constructs a promoter polling every interval.
func NewPromoter(producer *TaskProducer, interval time.Duration, logger logrus.FieldLogger) *Promoter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Promoter{producer: producer, interval: interval, logger: logger, now: time.Now}
}

// PromoteDue publishes every delayed invocation whose time has come. Only the caller that
// claims a member publishes it, so concurrent promoters never double-publish.
func (p *Promoter) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	client := p.producer.client
	taskIDs, err := client.ZRangeByScore(ctx, DelayedSetName, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore %s: %w", DelayedSetName, err)
	}

	promoted := 0
	for _, taskID := range taskIDs {
		payload, err := claimScript.Run(ctx, client, []string{DelayedSetName, DelayedPayloadsName}, taskID).Text()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return promoted, fmt.Errorf("claim %s: %w", taskID, err)
		}

		inv, err := decode(payload)
		if err != nil {
			p.logger.WithError(err).WithField("task_id", taskID).Error("dropping undecodable delayed invocation")
			continue
		}
		if err := p.producer.publishPayload(ctx, inv.ID, payload); err != nil {
			// Put it back so the next tick retries the publish.
			if restoreErr := p.producer.park(ctx, taskID, payload, now); restoreErr != nil {
				p.logger.WithError(restoreErr).WithField("task_id", taskID).Error("failed to restore delayed invocation")
			}
			return promoted, err
		}
		p.logger.WithFields(logrus.Fields{"task_id": inv.ID, "attempt": inv.Attempt}).Debug("promoted delayed invocation")
		promoted++
	}
	return promoted, nil
}

// Run polls until context cancellation.
func (p *Promoter) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := p.PromoteDue(ctx, p.now()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.WithError(err).Warn("promoting delayed invocations failed")
		}
	}
}

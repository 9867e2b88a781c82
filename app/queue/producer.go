package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
)

type TaskProducer struct {
	client *redis.Client
}

// NewTaskProducer constructs a Redis stream producer.
func NewTaskProducer(client *redis.Client) *TaskProducer {
	return &TaskProducer{client: client}
}

// Publish pushes an invocation onto the stream for immediate execution.
func (p *TaskProducer) Publish(ctx context.Context, inv *entity.TaskInvocation) error {
	payload, err := encode(inv)
	if err != nil {
		return err
	}
	return p.publishPayload(ctx, inv.ID, payload)
}

// Schedule parks an invocation in the delayed set until at. The Promoter moves it to the stream.
// The set holds at most one entry per task; scheduling again replaces the parked copy.
func (p *TaskProducer) Schedule(ctx context.Context, inv *entity.TaskInvocation, at time.Time) error {
	payload, err := encode(inv)
	if err != nil {
		return err
	}
	return p.park(ctx, inv.ID, payload, at)
}

func (p *TaskProducer) park(ctx context.Context, taskID string, payload string, at time.Time) error {
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, DelayedPayloadsName, taskID, payload)
	pipe.ZAdd(ctx, DelayedSetName, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: taskID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("park %s in %s: %w", taskID, DelayedSetName, err)
	}
	return nil
}

func (p *TaskProducer) publishPayload(ctx context.Context, taskID string, payload string) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]interface{}{
			fieldTaskID:  taskID,
			fieldPayload: payload,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd to %s: %w", StreamName, err)
	}
	return nil
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
)

// Processor runs one invocation. A nil error acks the message; an error leaves it pending
// for redelivery.
type Processor interface {
	Process(ctx context.Context, inv *entity.TaskInvocation) error
}

type TaskConsumer struct {
	client       *redis.Client
	processor    Processor
	consumerName string
	workers      int
	block        time.Duration
	retryPause   time.Duration
	logger       logrus.FieldLogger
}

// NewTaskConsumer constructs a pool of workers reading the task stream. Each worker joins
// the consumer group as consumerName-<n>.
func NewTaskConsumer(client *redis.Client, processor Processor, consumerName string, workers int, logger logrus.FieldLogger) *TaskConsumer {
	if workers < 1 {
		workers = 1
	}
	return &TaskConsumer{
		client:       client,
		processor:    processor,
		consumerName: consumerName,
		workers:      workers,
		block:        5 * time.Second,
		retryPause:   time.Second,
		logger:       logger,
	}
}

// Run starts the workers and blocks until context cancellation.
func (c *TaskConsumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"consumer": c.consumerName,
		"stream":   StreamName,
		"workers":  c.workers,
	}).Info("consumer started")

	var wg sync.WaitGroup
	for i := 1; i <= c.workers; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			c.work(ctx, name)
		}(fmt.Sprintf("%s-%d", c.consumerName, i))
	}
	wg.Wait()

	c.logger.WithField("consumer", c.consumerName).Info("consumer shutting down")
	return nil
}

// work is one worker loop: drain this consumer's pending messages, then read new ones.
func (c *TaskConsumer) work(ctx context.Context, name string) {
	logger := c.logger.WithField("worker", name)
	startID := "0"
	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: name,
			Streams:  []string{StreamName, startID},
			Count:    1,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if startID == "0" {
					startID = ">"
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("xreadgroup failed")
			c.pause(ctx)
			continue
		}

		for _, stream := range streams {
			if len(stream.Messages) == 0 && startID == "0" {
				startID = ">"
				continue
			}
			for _, msg := range stream.Messages {
				if !c.processMessage(ctx, name, msg) {
					// Re-read the pending entry after a pause.
					startID = "0"
					c.pause(ctx)
				}
			}
		}
	}
}

// processMessage hands one message to the processor and acks it unless the processor failed.
// It reports whether the message was acked.
func (c *TaskConsumer) processMessage(ctx context.Context, worker string, msg redis.XMessage) bool {
	payload, _ := msg.Values[fieldPayload].(string)
	logger := c.logger.WithFields(logrus.Fields{"worker": worker, "message_id": msg.ID})

	inv, err := decode(payload)
	if err != nil {
		logger.WithError(err).Error("dropping undecodable message")
		return c.ack(ctx, logger, msg.ID)
	}
	logger = logger.WithFields(logrus.Fields{"task_id": inv.ID, "kind": inv.Kind, "attempt": inv.Attempt})
	logger.Info("processing invocation")

	if err := c.processor.Process(ctx, inv); err != nil {
		logger.WithError(err).Warn("processing failed, message stays pending")
		return false
	}
	return c.ack(ctx, logger, msg.ID)
}

func (c *TaskConsumer) ack(ctx context.Context, logger logrus.FieldLogger, id string) bool {
	if err := c.client.XAck(ctx, StreamName, ConsumerGroup, id).Err(); err != nil {
		logger.WithError(err).Error("xack failed")
		return false
	}
	return true
}

func (c *TaskConsumer) pause(ctx context.Context) {
	timer := time.NewTimer(c.retryPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// ensureGroup creates the stream and consumer group if missing.
func (c *TaskConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, StreamName, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const repliedKeyPrefix = "mailtasks:replied:"

// RepliedRepository stores, per mailbox folder, the ids of messages that already received an auto-reply.
type RepliedRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRepliedRepository constructs a Redis-backed reply tracker. Each mailbox set expires ttl after its last write.
func NewRepliedRepository(client *redis.Client, ttl time.Duration) *RepliedRepository {
	return &RepliedRepository{client: client, ttl: ttl}
}

// Replied reports whether messageID was already answered in mailboxKey.
func (r *RepliedRepository) Replied(ctx context.Context, mailboxKey string, messageID string) (bool, error) {
	return r.client.SIsMember(ctx, repliedKeyPrefix+mailboxKey, messageID).Result()
}

// MarkReplied records messageID as answered.
func (r *RepliedRepository) MarkReplied(ctx context.Context, mailboxKey string, messageID string) error {
	key := repliedKeyPrefix + mailboxKey
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, messageID)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

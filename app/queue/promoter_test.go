package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-mailtasks/app/logging"
)

func TestPromoterPromoteDue(t *testing.T) {
	t.Parallel()

	_, client := newRedis(t)
	producer := NewTaskProducer(client)
	promoter := NewPromoter(producer, time.Second, logging.Discard())
	ctx := context.Background()
	now := time.UnixMilli(1700000010000)

	if err := producer.Schedule(ctx, newInvocation("due"), now.Add(-time.Second)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := producer.Schedule(ctx, newInvocation("later"), now.Add(time.Minute)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	promoted, err := promoter.PromoteDue(ctx, now)
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("expected 1 promoted, got %d", promoted)
	}
	if got := client.XLen(ctx, StreamName).Val(); got != 1 {
		t.Fatalf("expected 1 stream message, got %d", got)
	}
	if got := client.ZCard(ctx, DelayedSetName).Val(); got != 1 {
		t.Fatalf("expected 1 delayed member left, got %d", got)
	}
	if got := client.HLen(ctx, DelayedPayloadsName).Val(); got != 1 {
		t.Fatalf("expected 1 parked payload left, got %d", got)
	}

	promoted, err = promoter.PromoteDue(ctx, now)
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if promoted != 0 {
		t.Fatalf("expected nothing promoted twice, got %d", promoted)
	}
}

func TestPromoterConcurrentPromotesOnce(t *testing.T) {
	t.Parallel()

	_, client := newRedis(t)
	producer := NewTaskProducer(client)
	ctx := context.Background()
	now := time.UnixMilli(1700000010000)

	if err := producer.Schedule(ctx, newInvocation("once"), now); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := NewPromoter(producer, time.Second, logging.Discard()).PromoteDue(ctx, now)
			if err != nil {
				t.Errorf("PromoteDue: %v", err)
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 1 {
		t.Fatalf("expected exactly 1 promotion, got %d", total)
	}
	if got := client.XLen(ctx, StreamName).Val(); got != 1 {
		t.Fatalf("expected 1 stream message, got %d", got)
	}
}

func TestPromoterDropsUndecodableMember(t *testing.T) {
	t.Parallel()

	mr, client := newRedis(t)
	promoter := NewPromoter(NewTaskProducer(client), time.Second, logging.Discard())

	if _, err := mr.ZAdd(DelayedSetName, 1, "garbage"); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	mr.HSet(DelayedPayloadsName, "garbage", "{not json")
	if _, err := mr.ZAdd(DelayedSetName, 1, "orphan"); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}

	promoted, err := promoter.PromoteDue(context.Background(), time.UnixMilli(1700000010000))
	if err != nil {
		t.Fatalf("PromoteDue: %v", err)
	}
	if promoted != 0 {
		t.Fatalf("expected nothing promoted, got %d", promoted)
	}
	if got := client.ZCard(context.Background(), DelayedSetName).Val(); got != 0 {
		t.Fatalf("expected garbage removed, got %d members", got)
	}
	if got := client.HLen(context.Background(), DelayedPayloadsName).Val(); got != 0 {
		t.Fatalf("expected parked payloads removed, got %d", got)
	}
	if got := client.XLen(context.Background(), StreamName).Val(); got != 0 {
		t.Fatalf("expected nothing published, got %d", got)
	}
}

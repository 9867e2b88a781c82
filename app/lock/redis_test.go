package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockerAcquireRelease(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	key := InvocationKey("task-1")
	lockerA := NewRedisLocker(client)
	lockerB := NewRedisLocker(client)

	if err := lockerA.Acquire(context.Background(), key, time.Minute); err != nil {
		t.Fatalf("Acquire A: %v", err)
	}
	if err := lockerB.Acquire(context.Background(), key, time.Minute); err != ErrNotAcquired {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if err := lockerA.Release(context.Background(), key); err != nil {
		t.Fatalf("Release A: %v", err)
	}
	if err := lockerB.Acquire(context.Background(), key, time.Minute); err != nil {
		t.Fatalf("Acquire B after release: %v", err)
	}
	if err := lockerB.Release(context.Background(), key); err != nil {
		t.Fatalf("Release B: %v", err)
	}
}

func TestRedisLockerAlreadyHeld(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	key := InvocationKey("task-2")
	locker := NewRedisLocker(client)
	if err := locker.Acquire(context.Background(), key, time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := locker.Acquire(context.Background(), key, time.Minute); err != ErrAlreadyHeld {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	key := InvocationKey("task-3")
	locker := NewRedisLocker(client)
	if err := locker.Acquire(context.Background(), key, time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Simulate expiry followed by another worker taking the lock.
	if err := mr.Set(key, "someone-else"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := locker.Release(context.Background(), key); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got, _ := mr.Get(key); got != "someone-else" {
		t.Fatalf("expected foreign lock to survive, got %q", got)
	}
}

func TestRedisLockerExpires(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	key := InvocationKey("task-4")
	if err := NewRedisLocker(client).Acquire(context.Background(), key, time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if err := NewRedisLocker(client).Acquire(context.Background(), key, time.Minute); err != nil {
		t.Fatalf("expected expired lock to be acquirable, got %v", err)
	}
}

package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/events-aggregator/pkg/redis"
)

func TestLocalLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to fail while held")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire after release to succeed")
	}
}

func newRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.Wrap(raw), mr
}

func TestRedisLockExcludesOtherInstances(t *testing.T) {
	ctx := context.Background()
	client, mr := newRedisClient(t)
	key := client.LockKey("sync")

	first, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}
	second, _ := NewRedisLock(client, key, time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected first acquire, ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("expected second instance to be excluded, ok=%v err=%v", ok, err)
	}

	// Releasing a lock never acquired must not free the holder's key.
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatalf("lock key removed by non-owner")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(key) {
		t.Fatalf("lock key should be gone after owner release")
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("expected acquire after release")
	}
}

func TestRedisLockExpiredOwnerDoesNotDeleteNewHolder(t *testing.T) {
	ctx := context.Background()
	client, mr := newRedisClient(t)
	key := client.LockKey("sync")

	stale, _ := NewRedisLock(client, key, time.Minute)
	if ok, _ := stale.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}
	mr.FastForward(2 * time.Minute)

	fresh, _ := NewRedisLock(client, key, time.Minute)
	if ok, _ := fresh.Acquire(ctx); !ok {
		t.Fatalf("expected acquire after ttl expiry")
	}
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatalf("stale owner deleted the new holder's lock")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	client, _ := newRedisClient(t)
	if _, err := NewRedisLock(client, "", time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

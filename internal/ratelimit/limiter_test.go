package ratelimit

import (
	"context"
	"testing"
	"time"

	"notiflow/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func init() {
	logger.InitLogger("test")
}

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:0",
		DialTimeout: 10 * time.Millisecond,
		ReadTimeout: 10 * time.Millisecond,
		MaxRetries:  0,
	})
}

func TestAcquireRedisFailureFallsBackToLocal(t *testing.T) {
	l := NewLimiter(unreachableRedis())
	l.SetRate("smsgw", Rate{PerSecond: 100, Burst: 5})

	// The local bucket starts full; the first few acquisitions must go
	// through without redis and without noticeable blocking.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := l.Acquire(ctx, "smsgw"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
}

func TestAcquireLocalFallbackStillThrottles(t *testing.T) {
	l := NewLimiter(unreachableRedis())
	l.SetRate("smsgw", Rate{PerSecond: 50, Burst: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "smsgw"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	// Burst of 1 at 50 rps: the second and third tokens each wait ~20ms.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("local bucket did not throttle: 3 tokens in %v", elapsed)
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	l := NewLimiter(unreachableRedis())
	l.SetRate("smsgw", Rate{PerSecond: 0.001, Burst: 1})

	ctx, cancel := context.WithCancel(context.Background())
	// Drain the single burst token first.
	if err := l.Acquire(ctx, "smsgw"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, "smsgw") }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("acquire must fail once the context is cancelled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not return after cancellation")
	}
}

func TestUnregisteredScopeGetsDefaultRate(t *testing.T) {
	l := NewLimiter(unreachableRedis())

	if got := l.rateFor("never-configured"); got.PerSecond != 1 || got.Burst != 1 {
		t.Fatalf("default rate = %+v, want 1 rps burst 1", got)
	}
}

func TestSetRateResetsLocalBucket(t *testing.T) {
	l := NewLimiter(unreachableRedis())
	l.SetRate("smsgw", Rate{PerSecond: 1, Burst: 1})

	ctx := context.Background()
	if err := l.localFor("smsgw").Wait(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// Raising the budget must not be throttled by the old drained bucket.
	l.SetRate("smsgw", Rate{PerSecond: 1000, Burst: 10})
	start := time.Now()
	if err := l.localFor("smsgw").Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("stale local bucket survived SetRate: waited %v", elapsed)
	}
}

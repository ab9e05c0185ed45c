package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService() (*Service, *testClock) {
	clock := &testClock{t: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
	return NewService(NewMemoryStore()).WithClock(clock.Now), clock
}

func TestSlidingWindowBoundary(t *testing.T) {
	svc, clock := newTestService()
	ctx := context.Background()
	window := 30 * time.Minute

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordAttempt(ctx, "user-1", PurposeBooking, window); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
		clock.Advance(time.Minute)
	}

	exceeded, err := svc.IsLimitExceeded(ctx, "user-1", PurposeBooking, 3, window)
	if err != nil {
		t.Fatalf("IsLimitExceeded failed: %v", err)
	}
	if !exceeded {
		t.Fatal("three attempts within the window should exceed maxAttempts=3")
	}

	// 31 minutes after the first attempt the window has elapsed; the next
	// attempt starts a fresh window with count 1.
	clock.Advance(28 * time.Minute)
	rec, err := svc.RecordAttempt(ctx, "user-1", PurposeBooking, window)
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if rec.Attempts != 1 {
		t.Fatalf("expected fresh window with 1 attempt, got %d", rec.Attempts)
	}
	exceeded, _ = svc.IsLimitExceeded(ctx, "user-1", PurposeBooking, 3, window)
	if exceeded {
		t.Fatal("fresh window must not be limited")
	}
}

func TestIsLimitExceeded_ExpiredWindowNeverLimits(t *testing.T) {
	svc, clock := newTestService()
	ctx := context.Background()
	window := 10 * time.Minute

	for i := 0; i < 5; i++ {
		_, _ = svc.RecordAttempt(ctx, "user-1", PurposeOTPRequest, window)
	}
	clock.Advance(window)

	exceeded, err := svc.IsLimitExceeded(ctx, "user-1", PurposeOTPRequest, 3, window)
	if err != nil {
		t.Fatalf("IsLimitExceeded failed: %v", err)
	}
	if exceeded {
		t.Fatal("an expired window must not limit")
	}
}

func TestCooldown(t *testing.T) {
	svc, clock := newTestService()
	ctx := context.Background()

	passed, err := svc.IsCooldownPassed(ctx, "user-1", PurposeOTPRequest, 30*time.Second)
	if err != nil || !passed {
		t.Fatalf("no record means cooldown passed, got passed=%v err=%v", passed, err)
	}

	_, _ = svc.RecordAttempt(ctx, "user-1", PurposeOTPRequest, 10*time.Minute)
	passed, _ = svc.IsCooldownPassed(ctx, "user-1", PurposeOTPRequest, 30*time.Second)
	if passed {
		t.Fatal("cooldown should not have passed immediately after an attempt")
	}

	clock.Advance(30 * time.Second)
	passed, _ = svc.IsCooldownPassed(ctx, "user-1", PurposeOTPRequest, 30*time.Second)
	if !passed {
		t.Fatal("cooldown should have passed after 30s")
	}
}

func TestReset(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	window := 30 * time.Minute

	for i := 0; i < 3; i++ {
		_, _ = svc.RecordAttempt(ctx, "user-1", PurposePasswordVerify, window)
	}
	if exceeded, _ := svc.IsLimitExceeded(ctx, "user-1", PurposePasswordVerify, 3, window); !exceeded {
		t.Fatal("expected limit exceeded before reset")
	}

	if err := svc.Reset(ctx, "user-1", PurposePasswordVerify); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if exceeded, _ := svc.IsLimitExceeded(ctx, "user-1", PurposePasswordVerify, 3, window); exceeded {
		t.Fatal("reset should clear the window")
	}
	if passed, _ := svc.IsCooldownPassed(ctx, "user-1", PurposePasswordVerify, time.Hour); !passed {
		t.Fatal("reset should clear the cooldown")
	}
}

func TestRecordAttempt_ConcurrentAttemptsAllCounted(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordAttempt(ctx, "user-1", PurposeBooking, 30*time.Minute); err != nil {
				t.Errorf("RecordAttempt failed: %v", err)
			}
		}()
	}
	wg.Wait()

	exceeded, err := svc.IsLimitExceeded(ctx, "user-1", PurposeBooking, attempts, 30*time.Minute)
	if err != nil {
		t.Fatalf("IsLimitExceeded failed: %v", err)
	}
	if !exceeded {
		t.Fatalf("all %d concurrent attempts must be counted", attempts)
	}
}

func TestPurposesAreIndependent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	window := 30 * time.Minute

	for i := 0; i < 3; i++ {
		_, _ = svc.RecordAttempt(ctx, "user-1", PurposeBooking, window)
	}
	if exceeded, _ := svc.IsLimitExceeded(ctx, "user-1", PurposeOTPRequest, 3, window); exceeded {
		t.Fatal("limits must be scoped per purpose")
	}
}

func TestPurgeIdleKeepsLiveWindows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	_, _ = store.RecordAttempt(ctx, "stale", PurposeBooking, 30*time.Minute, now.Add(-48*time.Hour))
	_, _ = store.RecordAttempt(ctx, "live", PurposeBooking, 30*time.Minute, now.Add(-time.Minute))

	if n := store.purgeIdle(now); n != 1 {
		t.Fatalf("expected 1 purged record, got %d", n)
	}
	if _, ok, _ := store.Get(ctx, "live", PurposeBooking); !ok {
		t.Fatal("record inside its window must survive the purge")
	}
	if _, ok, _ := store.Get(ctx, "stale", PurposeBooking); ok {
		t.Fatal("idle record should have been purged")
	}
}

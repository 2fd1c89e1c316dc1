package services

import (
	"context"
	"testing"
	"time"
)

func TestBackoffDelay_NonDecreasingUntilCap(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	prev := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffDelay(attempt, base, max)
		if d < prev {
			t.Fatalf("delay decreased: attempt %d gave %v after %v", attempt, d, prev)
		}
		if d > max {
			t.Fatalf("delay %v exceeds cap %v", d, max)
		}
		prev = d
	}
}

func TestBackoffDelay_DoublesFromBase(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Hour // cap out of the way

	for attempt := 1; attempt <= 5; attempt++ {
		d := backoffDelay(attempt, base, max)
		want := base << (attempt - 1)
		// Jitter adds at most 10% on top of the doubled delay.
		if d < want || d >= want+want/10+time.Nanosecond {
			t.Fatalf("attempt %d: delay %v outside [%v, %v)", attempt, d, want, want+want/10)
		}
	}
}

func TestBackoffDelay_CapReturnsExactMax(t *testing.T) {
	base := 400 * time.Millisecond
	max := time.Second

	// Attempt 3 doubles to 1.6s which exceeds the cap.
	if d := backoffDelay(3, base, max); d != max {
		t.Fatalf("capped delay = %v, want exactly %v", d, max)
	}
	if d := backoffDelay(10, base, max); d != max {
		t.Fatalf("far-past-cap delay = %v, want exactly %v", d, max)
	}
}

func TestBackoffDelay_CoercesAttempt(t *testing.T) {
	base := 100 * time.Millisecond
	if d := backoffDelay(0, base, time.Second); d < base {
		t.Fatalf("attempt 0 delay %v below base", d)
	}
	if d := backoffDelay(-3, base, time.Second); d < base {
		t.Fatalf("negative attempt delay %v below base", d)
	}
}

func TestSleepCtx_ReturnsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := sleepCtx(ctx, 5*time.Second)
	if err == nil {
		t.Fatalf("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("sleepCtx did not return promptly on cancel: %v", elapsed)
	}
}

func TestSleepCtx_CompletesNormally(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepCtx: %v", err)
	}
}

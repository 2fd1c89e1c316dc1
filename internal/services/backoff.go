package services

import (
	"context"
	"math/rand"
	"time"
)

// backoffDelay returns the pause before retry number attempt (1-based): the
// base delay doubled per attempt, capped at max, plus up to 10% additive
// jitter. Jitter is additive only, so successive delays strictly increase
// until the cap is reached.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if jitterRange := delay / 10; jitterRange > 0 {
		delay += time.Duration(rand.Int63n(int64(jitterRange)))
	}
	if delay > max {
		delay = max
	}
	return delay
}

// sleepCtx pauses for d or until ctx is done, returning ctx.Err() in the
// latter case so the retry loop aborts deterministically on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package ratelimit implements the sliding-window admission quota applied to
// every inbound chat message, keyed by user id.
//
// Unlike a token bucket, the sliding window gives an exact guarantee: at most
// N requests are admitted within any trailing window of length W. The record
// of admitted timestamps is pruned on every call, so a window decays naturally
// and needs no background reaper. Idle windows are additionally evicted via
// opportunistic garbage collection to bound memory.
//
// The limiter is process-local. For horizontally scaled deployments, prefer a
// shared structure (e.g. Redis-backed) keyed the same way so the quota holds
// across the whole process group serving a user.
package ratelimit

import (
	"sync"
	"time"
)

// gcThreshold is the number of Admit calls between idle-window sweeps.
const gcThreshold = 5000

// window holds the admitted timestamps for one user, newest last.
// Each window owns its mutex so users never contend with each other.
type window struct {
	mu       sync.Mutex
	times    []time.Time
	lastSeen time.Time
}

// SlidingWindow admits at most maxRequests calls per user within any trailing
// span of the configured length. Safe for concurrent use.
type SlidingWindow struct {
	maxRequests int
	span        time.Duration

	mu      sync.Mutex
	windows map[string]*window
	gcN     uint64

	now func() time.Time // injectable clock for tests
}

// NewSlidingWindow constructs a limiter admitting maxRequests per span.
// maxRequests <= 0 is coerced to 1; span <= 0 is coerced to one second.
func NewSlidingWindow(maxRequests int, span time.Duration) *SlidingWindow {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if span <= 0 {
		span = time.Second
	}
	return &SlidingWindow{
		maxRequests: maxRequests,
		span:        span,
		windows:     make(map[string]*window),
		now:         time.Now,
	}
}

// Admit records the request and returns true when the user is under quota,
// or returns false without recording anything. The prune-count-compare-record
// sequence runs under the user's own lock, so concurrent calls for the same
// user serialize while other users proceed independently.
func (sw *SlidingWindow) Admit(userID string) bool {
	now := sw.now()
	w := sw.getWindow(userID, now)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-sw.span)

	// Prune expired entries in place; timestamps are appended in order, so
	// the survivors form a suffix.
	keep := 0
	for keep < len(w.times) && !w.times[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		w.times = append(w.times[:0], w.times[keep:]...)
	}

	if len(w.times) >= sw.maxRequests {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Len reports the number of live (non-evicted) per-user windows, for stats.
func (sw *SlidingWindow) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.windows)
}

// getWindow returns the window for userID, creating it if absent, and runs an
// opportunistic sweep of idle windows after a threshold of lookups. The sweep
// runs before touching the requested entry so a stale window for this very
// user is rebuilt rather than refreshed.
func (sw *SlidingWindow) getWindow(userID string, now time.Time) *window {
	// A window whose last admission is older than the span holds nothing.
	idleAfter := 2 * sw.span

	sw.mu.Lock()
	sw.gcN++
	if sw.gcN >= gcThreshold {
		for k, w := range sw.windows {
			if now.Sub(w.lastSeen) >= idleAfter {
				delete(sw.windows, k)
			}
		}
		sw.gcN = 0
	}

	w, ok := sw.windows[userID]
	if !ok {
		w = &window{}
		sw.windows[userID] = w
	}
	w.lastSeen = now
	sw.mu.Unlock()
	return w
}

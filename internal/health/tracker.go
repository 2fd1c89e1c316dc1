// Package health tracks provider liveness for the readiness signal. The
// liveness endpoint never calls the provider; instead the orchestrator marks
// every successful completion here, and /ready checks whether one happened
// recently enough.
package health

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// lastSuccessGauge exposes the mark timestamp so dashboards can alert on
// provider silence independently of the readiness window.
var lastSuccessGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "chat_provider_last_success_timestamp_seconds",
	Help: "Unix time of the last successful provider completion.",
})

func init() {
	prometheus.MustRegister(lastSuccessGauge)
}

// Tracker records the time of the last successful provider call.
// Safe for concurrent use.
type Tracker struct {
	window time.Duration

	mu          sync.Mutex
	lastSuccess time.Time

	now func() time.Time
}

// NewTracker builds a tracker whose Ready window is w.
func NewTracker(w time.Duration) *Tracker {
	return &Tracker{window: w, now: time.Now}
}

// MarkSuccess records a successful provider completion.
func (t *Tracker) MarkSuccess() {
	now := t.now()
	t.mu.Lock()
	t.lastSuccess = now
	t.mu.Unlock()
	lastSuccessGauge.Set(float64(now.Unix()))
}

// Ready reports whether a provider success happened within the window, along
// with the time of the last success (zero when none yet).
//
// A freshly started process has no successes yet and reports ready, so
// deployments do not flap before the first user message arrives.
func (t *Tracker) Ready() (bool, time.Time) {
	t.mu.Lock()
	last := t.lastSuccess
	t.mu.Unlock()

	if last.IsZero() {
		return true, last
	}
	return t.now().Sub(last) <= t.window, last
}

// Package retry bounds the automatic recovery of failed fetches.
//
// A Policy describes how many automatic reloads may follow consecutive
// failures and how long to wait before each one (exponential backoff with
// jitter). A Budget caps the failure rate across every browser talking to
// the same API, so a persistently failing backend is not hammered.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for automatic reloads.
var (
	reloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_auto_reloads_total",
		Help: "Total number of scheduled automatic reloads",
	})

	reloadBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_auto_reload_backoff_seconds",
		Help:    "Backoff before automatic reloads",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	reloadExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_auto_reload_exhausted_total",
		Help: "Total number of times automatic reload attempts were exhausted",
	})
)

// Policy holds the configuration for automatic reloads.
type Policy struct {
	// MaxAttempts is the maximum number of consecutive automatic reloads.
	MaxAttempts int

	// InitialBackoff is the delay before the first reload.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay.
	MaxBackoff time.Duration

	// Multiplier grows the delay after each attempt.
	Multiplier float64

	// Jitter randomises each delay by ±Jitter (0.2 = ±20%).
	Jitter float64
}

// DefaultPolicy returns the default reload policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// NewBackoff returns a fresh attempt tracker for p.
func (p Policy) NewBackoff() *Backoff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialBackoff
	exp.MaxInterval = p.MaxBackoff
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &Backoff{policy: p, exp: exp}
}

// Backoff tracks consecutive automatic reload attempts.
type Backoff struct {
	policy   Policy
	exp      *backoff.ExponentialBackOff
	attempts int
}

// Next reserves the next attempt and returns its delay. It reports false
// once MaxAttempts attempts have been handed out since the last Reset.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempts >= b.policy.MaxAttempts {
		if b.attempts == b.policy.MaxAttempts {
			reloadExhaustedTotal.Inc()
			b.attempts++
		}
		return 0, false
	}

	b.attempts++
	delay := b.exp.NextBackOff()

	reloadsTotal.Inc()
	reloadBackoffSeconds.Observe(delay.Seconds())

	return delay, true
}

// Attempts returns the number of attempts handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return min(b.attempts, b.policy.MaxAttempts)
}

// Exhausted reports whether no attempts are left.
func (b *Backoff) Exhausted() bool {
	return b.attempts >= b.policy.MaxAttempts
}

// Reset starts counting from zero again, typically after a success.
func (b *Backoff) Reset() {
	b.attempts = 0
	b.exp.Reset()
}

package socketio

import (
	"time"

	"github.com/cenkalti/backoff"
)

// reconnectBackoff implements the reconnect schedule on top of
// cenkalti/backoff's ExponentialBackOff. Its continuous randomization
// avoids the coin-flip jitter ("Math.random() > .5") some reference
// clients use, which only ever produces two distinct delays per step.
type reconnectBackoff struct {
	eb          *backoff.ExponentialBackOff
	attempts    int
	maxAttempts int
}

func newReconnectBackoff(cfg *Config) *reconnectBackoff {
	base := cfg.ReconnectDelay
	if base < 100*time.Millisecond {
		base = 100 * time.Millisecond
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.Multiplier = 2
	eb.RandomizationFactor = cfg.RandomizationFactor
	eb.MaxInterval = cfg.MaxReconnectDelay
	eb.MaxElapsedTime = 0 // maxAttempts, not elapsed time, governs when we stop
	eb.Reset()
	return &reconnectBackoff{eb: eb, maxAttempts: cfg.MaxReconnectAttempts}
}

// reset zeroes the attempt counter, called on every successful OPEN.
func (r *reconnectBackoff) reset() {
	r.attempts = 0
	r.eb.Reset()
}

// next returns the delay before the next attempt, clamped to
// MaxReconnectDelay after jitter. ok is false once maxAttempts attempts
// have already been made.
func (r *reconnectBackoff) next() (time.Duration, bool) {
	if r.attempts >= r.maxAttempts {
		return 0, false
	}
	r.attempts++
	d := r.eb.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	if d > r.eb.MaxInterval {
		d = r.eb.MaxInterval
	}
	return d, true
}

// attemptNumber is the 1-based number of the attempt next() just scheduled.
func (r *reconnectBackoff) attemptNumber() int {
	return r.attempts
}

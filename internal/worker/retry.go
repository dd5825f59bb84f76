package worker

import "time"

const (
	fallbackInitialDelay  = time.Second
	fallbackBackoffFactor = 2
)

// RetryPolicy controls how failed sync tasks are rescheduled. Zero-value
// fields fall back to a one-second base delay doubling per attempt.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the backoff before retrying the given attempt
// (1-based), capped at MaxDelay when one is set.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	base := r.InitialDelay
	if base <= 0 {
		base = fallbackInitialDelay
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = fallbackBackoffFactor
	}

	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if r.MaxDelay > 0 && delay >= float64(r.MaxDelay) {
			return r.MaxDelay
		}
	}

	d := time.Duration(delay)
	if d <= 0 {
		return fallbackInitialDelay
	}
	return d
}

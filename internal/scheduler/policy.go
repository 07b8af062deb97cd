package scheduler

import (
	"math"
	"time"
)

// Backoff defaults.
const (
	DefaultRetryDelay  = 30 * time.Second
	DefaultBackoffMult = 2.0
)

// RetryPolicy returns the delay before the next cycle given the number of
// consecutive failed cycles (0 after a success).
type RetryPolicy interface {
	Next(failures int) time.Duration
}

// IntervalPolicy waits the same interval whatever the outcome.
type IntervalPolicy struct {
	Interval time.Duration
}

// Next implements RetryPolicy.
func (p IntervalPolicy) Next(int) time.Duration {
	return p.Interval
}

// BackoffPolicy retries a failed cycle sooner, doubling the delay on each
// consecutive failure up to Max. After a success it waits Interval.
type BackoffPolicy struct {
	Interval   time.Duration
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// NewBackoffPolicy creates a BackoffPolicy with default initial delay and
// multiplier. A zero max caps retries at interval.
func NewBackoffPolicy(interval, max time.Duration) BackoffPolicy {
	if max <= 0 {
		max = interval
	}
	return BackoffPolicy{
		Interval:   interval,
		Initial:    DefaultRetryDelay,
		Multiplier: DefaultBackoffMult,
		Max:        max,
	}
}

// Next implements RetryPolicy.
func (p BackoffPolicy) Next(failures int) time.Duration {
	if failures <= 0 {
		return p.Interval
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.Initial) * math.Pow(mult, float64(failures-1))
	if p.Max > 0 && delay > float64(p.Max) {
		return p.Max
	}
	return time.Duration(delay)
}

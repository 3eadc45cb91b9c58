package resilience

import (
	"errors"
	"time"
)

// RetryPolicy is a bounded retry schedule. Attempt n waits Delays[n]; once
// the delays are used up the caller gives up.
type RetryPolicy struct {
	Delays []time.Duration
}

// DefaultRestartPolicy is the recognizer restart schedule: a quick retry,
// then a slower one, then give up.
func DefaultRestartPolicy() RetryPolicy {
	return RetryPolicy{Delays: []time.Duration{50 * time.Millisecond, 500 * time.Millisecond}}
}

// Backoff returns a policy of attempts delays that start at initial and
// double up to ceiling.
func Backoff(initial, ceiling time.Duration, attempts int) RetryPolicy {
	delays := make([]time.Duration, 0, attempts)
	d := initial
	for i := 0; i < attempts; i++ {
		delays = append(delays, d)
		d *= 2
		if d > ceiling {
			d = ceiling
		}
	}
	return RetryPolicy{Delays: delays}
}

// Attempts returns the number of retries the policy allows.
func (p RetryPolicy) Attempts() int { return len(p.Delays) }

// Delay returns the wait before retry attempt n (zero based) and whether the
// attempt is allowed at all.
func (p RetryPolicy) Delay(n int) (time.Duration, bool) {
	if n < 0 || n >= len(p.Delays) {
		return 0, false
	}
	return p.Delays[n], true
}

// Validate rejects negative delays.
func (p RetryPolicy) Validate() error {
	for _, d := range p.Delays {
		if d < 0 {
			return errors.New("resilience: retry delays must not be negative")
		}
	}
	return nil
}

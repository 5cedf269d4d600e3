package coordinator

import "time"

// Clock supplies the current time and backoff timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock is the wall clock.
type RealClock struct{}

// Now returns time.Now in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// After delegates to time.After.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// BackoffPolicy returns the wait after failed attempt k (1-based).
type BackoffPolicy func(attempt int) time.Duration

// ExponentialBackoff waits base * 2^(k-1): with a one second base the waits
// are 1s, 2s, 4s, 8s, 16s. There is no jitter and no cap.
func ExponentialBackoff(base time.Duration) BackoffPolicy {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base << (attempt - 1)
	}
}

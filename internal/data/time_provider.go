package data

import "time"

// TimeProvider abstracts the clock used for lease and retention arithmetic so
// repository tests can control time.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (r *RealTimeProvider) Now() time.Time {
	return time.Now()
}

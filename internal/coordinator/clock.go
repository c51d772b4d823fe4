package coordinator

import "time"

// Clock is the time source for the deferred check.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the wall clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// After returns time.After(d).
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

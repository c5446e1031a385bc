package normalize

import "time"

// Clock is the explicit "current time" capability threaded through the
// sync context, replacing the ambient current-time/timezone service the
// source system relies on (see spec design notes).
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a Clock that always returns the same instant; used in
// tests to make attempt timestamps deterministic.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (f FixedClock) Now() time.Time { return f.At }

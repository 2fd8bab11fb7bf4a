// Package clock abstracts wall-clock time so push-mtime behavior is
// deterministically testable.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System wraps time.Now.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Mock is a Clock that can be driven by tests. Every call to Now advances
// time by one nanosecond so two reads are never equal.
type Mock time.Time

// NewMock returns a Mock reset to its epoch.
func NewMock() *Mock {
	m := new(Mock)
	m.Reset()
	return m
}

// Reset sets the clock back to its fixed epoch (1970-01-01T00:00:01Z).
func (c *Mock) Reset() {
	*c = Mock(time.Unix(1, 0))
}

func (c *Mock) Now() (now time.Time) {
	now = time.Time(*c)
	c.Advance(time.Nanosecond)
	return
}

// Advance moves the mock clock forward by d.
func (c *Mock) Advance(d time.Duration) {
	*c = Mock(time.Time(*c).Add(d))
}

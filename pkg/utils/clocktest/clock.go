// Package clocktest provides a controllable ports.Clock for tests.
package clocktest

import "time"

// Clock always reports the same instant. Advance moves it forward.
type Clock struct {
	At time.Time
}

func (c *Clock) Now() time.Time {
	return c.At
}

func (c *Clock) Advance(d time.Duration) {
	c.At = c.At.Add(d)
}

package testfixtures

import (
	"sync"
	"time"
)

var referenceTime = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

// ReferenceTime is the instant fixture clocks start at: 2025-03-10 12:00 UTC.
func ReferenceTime() time.Time {
	return referenceTime
}

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to start, or to ReferenceTime when
// start is the zero value.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for injection into stores.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// SetSchedule moves the clock to a record style date and time in the clock's
// current location.
func (c *Clock) SetSchedule(date, clock string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, err := time.ParseInLocation("2006-01-02T15:04", date+"T"+clock, c.current.Location())
	if err != nil {
		return err
	}
	c.current = at
	return nil
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}

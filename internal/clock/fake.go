package clock

import "time"

// FakeClock is a fixed clock for tests. It only moves when told to, which
// keeps due-date and effective-window assertions deterministic.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// SetTime pins the clock to t.
func (c *FakeClock) SetTime(t time.Time) {
	c.now = t.UTC()
}

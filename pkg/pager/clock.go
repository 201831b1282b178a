package pager

import "time"

// Clock abstracts time.Now so tests can fast-forward TTLs deterministically, the way pkg/cache/hcc.go's tests
// advance a fake clock instead of sleeping real time (kiwi itself calls time.Now() directly inside HyperClock; this
// module makes the dependency explicit since the pager's scenario tests need to jump TTLs without real sleeps).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the production Clock implementation.
var RealClock Clock = realClock{}

// FakeClock is a settable Clock for tests.
type FakeClock struct {
	t time.Time
}

// NewFakeClock returns a FakeClock initialised to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{t: t}
}

func (c *FakeClock) Now() time.Time { return c.t }

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic newness.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for newness. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time of the package clock in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}

// SPDX-License-Identifier: GPL-3.0-or-later

package sockpipe

import "time"

// ClockID selects the clock read by [*Clock.Gettime].
type ClockID int

const (
	// ClockRealtime is the wall clock, as seconds since the Unix epoch.
	ClockRealtime ClockID = iota

	// ClockMonotonic never jumps backwards; its origin is the creation of
	// the [*Clock].
	ClockMonotonic
)

// Timespec is the result of [*Clock.Gettime].
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Duration converts the [Timespec] to a [time.Duration].
func (ts Timespec) Duration() time.Duration {
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
}

// NewClock returns a [*Clock] reading time from cfg.TimeNow.
func NewClock(cfg *Config) *Clock {
	return &Clock{origin: cfg.TimeNow(), timeNow: cfg.TimeNow}
}

// Clock emulates clock_gettime(2) for code ported from POSIX.
type Clock struct {
	origin  time.Time
	timeNow func() time.Time
}

// Gettime returns the current value of the given clock, or an error
// wrapping [ErrUnsupportedClock] for clocks it cannot emulate.
func (c *Clock) Gettime(id ClockID) (Timespec, error) {
	now := c.timeNow()
	switch id {
	case ClockRealtime:
		return Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())}, nil
	case ClockMonotonic:
		elapsed := now.Sub(c.origin)
		return Timespec{Sec: int64(elapsed / time.Second), Nsec: int64(elapsed % time.Second)}, nil
	default:
		return Timespec{}, newOpError("clock_gettime", ErrUnsupportedClock, nil)
	}
}

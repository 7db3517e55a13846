// Package timestamp converts the integer epoch timestamps carried on the
// wire. Bus records use nanoseconds since the Unix epoch; tablet frames use
// milliseconds. Zero always means "not set".
package timestamp

import (
	"time"
)

// NowNs returns the current time as Unix nanoseconds.
func NowNs() int64 {
	return time.Now().UnixNano()
}

// NowMs returns the current time as Unix milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// FromUnixNs converts Unix nanoseconds to time.Time. Zero gives the zero time.
func FromUnixNs(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// FromUnixMs converts Unix milliseconds to time.Time. Zero gives the zero time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ToUnixNs converts t to Unix nanoseconds. The zero time gives 0.
func ToUnixNs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Unit bounds for Guess. They separate the units for any date after 1973.
const (
	secondsLimit = 1e11
	millisLimit  = 1e14
	microsLimit  = 1e17
)

// Guess interprets v as seconds, milliseconds, microseconds or nanoseconds
// since the epoch, picking the unit by magnitude. Drivers disagree on units
// for anything that is not a bus record.
func Guess(v int64) time.Time {
	switch {
	case v <= 0:
		return time.Time{}
	case v < secondsLimit:
		return time.Unix(v, 0)
	case v < millisLimit:
		return time.UnixMilli(v)
	case v < microsLimit:
		return time.UnixMicro(v)
	default:
		return time.Unix(0, v)
	}
}

// Age returns how old a nanosecond timestamp is relative to now. Unset
// timestamps are infinitely old.
func Age(ns int64, now time.Time) time.Duration {
	if ns == 0 {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(time.Unix(0, ns))
}

// Format renders a nanosecond timestamp as RFC3339 with milliseconds, or ""
// when unset.
func Format(ns int64) string {
	if ns == 0 {
		return ""
	}
	return time.Unix(0, ns).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

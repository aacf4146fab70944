// Package ratelimit accounts the per-author send time budget. The cooldown
// window comes from the settings record; this package only does the
// arithmetic, it never touches the store or the clock.
package ratelimit

import "time"

// Remaining reports how much of the cooldown window is still outstanding
// after the author's most recent send. Zero means the author may send now.
// A zero lastSent means the author has no recorded send and is never limited.
func Remaining(lastSent, now time.Time, cooldown time.Duration) time.Duration {
	if cooldown <= 0 || lastSent.IsZero() {
		return 0
	}
	remaining := cooldown - now.Sub(lastSent)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryAfterSeconds rounds a remaining budget up to whole seconds for the
// client-facing error payload. A positive remainder never rounds to zero.
func RetryAfterSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	seconds := int(remaining / time.Second)
	if remaining%time.Second > 0 {
		seconds++
	}
	return seconds
}

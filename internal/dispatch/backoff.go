package dispatch

import "time"

// Backoff returns the delay to wait after the given failed attempt
// (1-based). The delay doubles per attempt starting from base and is capped
// at max. The function is pure so the schedule can be asserted in tests.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

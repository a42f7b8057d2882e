package connection

import "time"

// backoffDelay returns the wait before reconnect attempt n (1-indexed):
// base × 2^(n-1), capped at max when max > 0.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if max > 0 && wait >= max {
			return max
		}
	}
	if max > 0 && wait > max {
		return max
	}
	return wait
}

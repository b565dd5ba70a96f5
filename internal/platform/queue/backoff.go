package queue

import "time"

// Backoff computes exponential redelivery delays
type Backoff struct {
	Base time.Duration // Delay after the first failed attempt
	Max  time.Duration // Ceiling on the computed delay
}

// Delay returns the redelivery delay after the given 1-based failed attempt:
// Base * 2^(attempt-1), capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

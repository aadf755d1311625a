package services

import "time"

// Backoff computes the retry delay applied after consecutive failures.
// Pollers and realtime connections share the same shape: exponential
// doubling from a base delay, capped at a maximum.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff doubles from 1s and caps at one hour.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: time.Hour}
}

// Delay returns the delay after the given number of consecutive
// failures: min(Max, Base << failures). Zero failures means no delay.
func (b Backoff) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := b.Base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}

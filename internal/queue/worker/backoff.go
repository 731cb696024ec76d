package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff returns 1s, 2s, 4s... capped at one minute, plus up to
// 250ms of jitter.
func ExponentialBackoff(attempt int) time.Duration {
	base := time.Second
	capDelay := time.Minute

	if attempt < 0 {
		attempt = 0
	}

	multiple := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(base) * multiple)

	if delay > capDelay || delay <= 0 {
		delay = capDelay
	}

	delay += time.Duration(rand.IntN(250)) * time.Millisecond
	return delay
}

package postgres

import (
	"math"
	"math/rand/v2"
	"time"
)

// maxRetryDelay caps the exponential growth so a misconfigured retry
// count cannot stall a worker for minutes.
const maxRetryDelay = 5 * time.Second

// retryDelay computes base * 2^attempt + random(0, jitterMax).
// attempt is zero-based.
func retryDelay(attempt int, base, jitterMax time.Duration) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}

	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxRetryDelay || d <= 0 {
		d = maxRetryDelay
	}

	return d + jitter(jitterMax)
}

// jitter returns a uniform random duration in [0, maxJitter].
func jitter(maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(maxJitter) + 1))
}

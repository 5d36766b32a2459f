package sdk

import (
	"math"
	"math/rand"
	"time"
)

// BackoffDelay computes the exponential-backoff-with-jitter delay for a
// retry attempt:
//
//	exponential = min(base * 2^attempt, max)
//	delay       = floor(exponential * (1 + jitter*random[0,1)))
//
// attempt is zero-based: the delay after the first failed attempt uses
// attempt 0. The result is always in [exponential, exponential*(1+jitter)]
// and is not deterministic when jitter > 0, so callers testing this
// function must assert ranges, not exact values. Negative attempts and
// negative bases are not valid input.
//
// Example:
//
//	delay := sdk.BackoffDelay(2, 100*time.Millisecond, 5*time.Second, 0.3)
//	// 400ms <= delay <= 520ms
func BackoffDelay(attempt int, base, max time.Duration, jitter float64) time.Duration {
	return backoffDelay(attempt, base, max, jitter, rand.Float64)
}

// backoffDelay is the range-testable core with an injected random draw.
func backoffDelay(attempt int, base, max time.Duration, jitter float64, random func() float64) time.Duration {
	exponential := float64(base) * math.Pow(2, float64(attempt))
	if exponential > float64(max) {
		exponential = float64(max)
	}
	if exponential < 0 {
		exponential = 0
	}

	delay := exponential
	if jitter > 0 {
		delay += exponential * jitter * random()
	}

	return time.Duration(math.Floor(delay))
}

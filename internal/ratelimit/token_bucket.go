/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenBucketThrottler paces dispatches using the token bucket algorithm.
type TokenBucketThrottler struct {
	limiter *rate.Limiter
}

// NewTokenBucketThrottler creates a new token bucket throttler.
// Burst tokens accumulate during idle periods up to maxBurst,
// allowing short spikes above the sustained rate.
func NewTokenBucketThrottler(maxRate Rate, maxBurst int) *TokenBucketThrottler {
	if maxBurst < 1 {
		maxBurst = 1
	}
	return &TokenBucketThrottler{
		limiter: rate.NewLimiter(rate.Limit(float64(maxRate.Count)/maxRate.Duration.Seconds()), maxBurst),
	}
}

// Wait blocks until the next dispatch is allowed or ctx is done.
func (t *TokenBucketThrottler) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

const leakyBucketKey = "egress"

// LeakyBucketThrottler implements GCRA (Generic Cell Rate Algorithm). It's a leaky bucket variant algorithm.
// More details and good explanation of this alg is provided here: https://brandur.org/rate-limiting#gcra.
type LeakyBucketThrottler struct {
	limiter *throttled.GCRARateLimiterCtx
}

// NewLeakyBucketThrottler creates a new leaky bucket throttler.
func NewLeakyBucketThrottler(maxRate Rate, maxBurst int) (*LeakyBucketThrottler, error) {
	gcraStore, err := memstore.NewCtx(1)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	reqQuota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(maxRate.Count, maxRate.Duration),
		MaxBurst: maxBurst,
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, reqQuota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &LeakyBucketThrottler{gcraLimiter}, nil
}

// Wait blocks until the next dispatch is allowed or ctx is done.
func (t *LeakyBucketThrottler) Wait(ctx context.Context) error {
	for {
		limited, res, err := t.limiter.RateLimitCtx(ctx, leakyBucketKey, 1)
		if err != nil {
			return err
		}
		if !limited {
			return nil
		}
		if err := waitRetryAfter(ctx, res.RetryAfter); err != nil {
			return err
		}
	}
}

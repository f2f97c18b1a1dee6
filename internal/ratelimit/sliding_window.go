/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// SlidingWindowThrottler implements sliding window rate limiting algorithm.
type SlidingWindowThrottler struct {
	limiter *slidingwindow.Limiter
	maxRate Rate
}

// NewSlidingWindowThrottler creates a new sliding window throttler.
func NewSlidingWindowThrottler(maxRate Rate) *SlidingWindowThrottler {
	lim, _ := slidingwindow.NewLimiter(
		maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	return &SlidingWindowThrottler{limiter: lim, maxRate: maxRate}
}

// Wait blocks until the next dispatch is allowed or ctx is done.
func (t *SlidingWindowThrottler) Wait(ctx context.Context) error {
	for {
		if t.limiter.Allow() {
			return nil
		}
		now := time.Now()
		retryAfter := now.Truncate(t.maxRate.Duration).Add(t.maxRate.Duration).Sub(now)
		if err := waitRetryAfter(ctx, retryAfter); err != nil {
			return err
		}
	}
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"
)

// Rate describes the frequency of dispatches.
type Rate struct {
	Count    int
	Duration time.Duration
}

// PerSecond builds a Rate of count dispatches per second.
func PerSecond(count int) Rate {
	return Rate{Count: count, Duration: time.Second}
}

// Throttler paces egress dispatches.
type Throttler interface {
	// Wait blocks until the next dispatch is allowed or ctx is done.
	Wait(ctx context.Context) error
}

// waitRetryAfter sleeps for the passed duration with respect to ctx.
func waitRetryAfter(ctx context.Context, retryAfter time.Duration) error {
	timer := time.NewTimer(retryAfter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

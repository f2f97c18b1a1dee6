/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketThrottlerWait(t *testing.T) {
	throttler := NewTokenBucketThrottler(Rate{Count: 100, Duration: time.Second}, 1)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, throttler.Wait(ctx))
	}
	elapsed := time.Since(start)

	// 5 dispatches at 100/s: the first is immediate, the rest are paced at 10ms each.
	require.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	require.Less(t, elapsed, 500*time.Millisecond)
}

func TestTokenBucketThrottlerBurst(t *testing.T) {
	throttler := NewTokenBucketThrottler(Rate{Count: 1, Duration: time.Second}, 5)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, throttler.Wait(ctx))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestTokenBucketThrottlerWaitCanceled(t *testing.T) {
	throttler := NewTokenBucketThrottler(Rate{Count: 1, Duration: time.Hour}, 1)

	require.NoError(t, throttler.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, throttler.Wait(ctx))
}

func TestLeakyBucketThrottlerWait(t *testing.T) {
	throttler, err := NewLeakyBucketThrottler(Rate{Count: 100, Duration: time.Second}, 0)
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, throttler.Wait(ctx))
	}
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	require.Less(t, elapsed, 500*time.Millisecond)
}

func TestLeakyBucketThrottlerWaitCanceled(t *testing.T) {
	throttler, err := NewLeakyBucketThrottler(Rate{Count: 1, Duration: time.Hour}, 0)
	require.NoError(t, err)

	require.NoError(t, throttler.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, throttler.Wait(ctx), context.DeadlineExceeded)
}

func TestSlidingWindowThrottlerWait(t *testing.T) {
	throttler := NewSlidingWindowThrottler(Rate{Count: 2, Duration: 100 * time.Millisecond})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, throttler.Wait(ctx))
	}
	elapsed := time.Since(start)

	// 4 dispatches with 2 per window: at least one full window boundary is crossed.
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestSlidingWindowThrottlerWaitCanceled(t *testing.T) {
	throttler := NewSlidingWindowThrottler(Rate{Count: 1, Duration: time.Hour})

	require.NoError(t, throttler.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, throttler.Wait(ctx), context.DeadlineExceeded)
}

func TestPerSecond(t *testing.T) {
	r := PerSecond(10)
	require.Equal(t, 10, r.Count)
	require.Equal(t, time.Second, r.Duration)
}

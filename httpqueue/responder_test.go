/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-webkit/log/logtest"
)

type mockPool struct {
	mu         sync.Mutex
	dispatched []PoolRequest
	results    chan PoolResult
	stopOnce   sync.Once
	closed     bool

	// autoRespond makes Dispatch immediately report a 200 result.
	autoRespond bool

	// dispatchErr, when set, is returned by Dispatch instead of accepting the request.
	dispatchErr error

	// dispatchGate, when set, makes Dispatch signal dispatchStarted and block
	// until the gate is closed.
	dispatchGate    chan struct{}
	dispatchStarted chan struct{}
}

func newMockPool(autoRespond bool) *mockPool {
	return &mockPool{results: make(chan PoolResult, 1000), autoRespond: autoRespond}
}

func (p *mockPool) Dispatch(req PoolRequest) error {
	if p.dispatchGate != nil {
		select {
		case p.dispatchStarted <- struct{}{}:
		default:
		}
		<-p.dispatchGate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &PoolShutdownError{}
	}
	if p.dispatchErr != nil {
		return p.dispatchErr
	}
	p.dispatched = append(p.dispatched, req)
	if p.autoRespond {
		p.results <- PoolResult{Token: req.Token, Response: makeOKResponse(req.Request)}
	}
	return nil
}

func (p *mockPool) Results() <-chan PoolResult {
	return p.results
}

func (p *mockPool) Shutdown() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.results)
	})
}

func (p *mockPool) dispatchedRequests() []PoolRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PoolRequest{}, p.dispatched...)
}

func (p *mockPool) sendResult(res PoolResult) {
	p.results <- res
}

func makeOKResponse(req *http.Request) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}
}

func makeGetRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func waitFuture(t *testing.T, f *Future) (*http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestQueueResponderResolvesFutures(t *testing.T) {
	pool := newMockPool(true)
	r, err := NewQueueResponder(pool, 10, 1000)
	require.NoError(t, err)
	defer r.Shutdown()

	future := r.Submit(makeGetRequest(t, "http://example.com/orders"))
	resp, err := waitFuture(t, future)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestQueueResponderFIFOAdmission(t *testing.T) {
	pool := newMockPool(true)
	r, err := NewQueueResponder(pool, 100, 10000)
	require.NoError(t, err)
	defer r.Shutdown()

	const total = 50
	futures := make([]*Future, 0, total)
	for i := 0; i < total; i++ {
		req := makeGetRequest(t, fmt.Sprintf("http://example.com/items/%d", i))
		futures = append(futures, r.Submit(req))
	}
	for _, f := range futures {
		_, err := waitFuture(t, f)
		require.NoError(t, err)
	}

	dispatched := pool.dispatchedRequests()
	require.Len(t, dispatched, total)
	for i, pr := range dispatched {
		require.Equal(t, fmt.Sprintf("/items/%d", i), pr.Request.URL.Path)
	}
}

func TestQueueResponderQueueFull(t *testing.T) {
	// The dispatch loop is held inside the pool so that submitted requests
	// stay in the queue.
	pool := newMockPool(false)
	pool.dispatchGate = make(chan struct{})
	pool.dispatchStarted = make(chan struct{}, 1)
	const queueSize = 5
	r, err := NewQueueResponder(pool, queueSize, 1000)
	require.NoError(t, err)

	first := r.Submit(makeGetRequest(t, "http://example.com/"))
	<-pool.dispatchStarted

	futures := make([]*Future, 0, queueSize+3)
	for i := 0; i < queueSize+3; i++ {
		futures = append(futures, r.Submit(makeGetRequest(t, "http://example.com/")))
	}

	var fullCount int
	for _, f := range futures {
		select {
		case <-f.Done():
			_, err := f.Wait(context.Background())
			var queueFullErr *QueueFullError
			require.ErrorAs(t, err, &queueFullErr)
			require.Equal(t, queueSize, queueFullErr.QueueSize)
			require.True(t, IsRetryable(err))
			fullCount++
		default:
		}
	}
	require.Equal(t, 3, fullCount)

	close(pool.dispatchGate)
	r.Shutdown()

	// The first request was handed to the pool but never got a result.
	_, err = waitFuture(t, first)
	var shutdownErr *PoolShutdownError
	require.ErrorAs(t, err, &shutdownErr)
}

func TestQueueResponderSubmitAfterShutdown(t *testing.T) {
	pool := newMockPool(true)
	r, err := NewQueueResponder(pool, 10, 1000)
	require.NoError(t, err)
	r.Shutdown()

	future := r.Submit(makeGetRequest(t, "http://example.com/"))
	_, err = waitFuture(t, future)
	var shutdownErr *PoolShutdownError
	require.ErrorAs(t, err, &shutdownErr)
	require.EqualError(t, err, "connection pool was shut down while running the request")
	require.False(t, IsRetryable(err))
}

func TestQueueResponderShutdownFailsQueuedRequests(t *testing.T) {
	// Rate limit 1/s and a non-responding pool keep submissions queued.
	pool := newMockPool(false)
	r, err := NewQueueResponder(pool, 10, 1)
	require.NoError(t, err)

	futures := make([]*Future, 0, 5)
	for i := 0; i < 5; i++ {
		futures = append(futures, r.Submit(makeGetRequest(t, "http://example.com/")))
	}
	r.Shutdown()

	for _, f := range futures {
		_, err := waitFuture(t, f)
		var shutdownErr *PoolShutdownError
		require.ErrorAs(t, err, &shutdownErr)
	}
}

func TestQueueResponderShutdownIdempotent(t *testing.T) {
	pool := newMockPool(true)
	r, err := NewQueueResponder(pool, 10, 1000)
	require.NoError(t, err)
	r.Shutdown()
	r.Shutdown()
}

func TestQueueResponderUnorderedResults(t *testing.T) {
	pool := newMockPool(false)
	r, err := NewQueueResponder(pool, 10, 1000)
	require.NoError(t, err)
	defer r.Shutdown()

	f1 := r.Submit(makeGetRequest(t, "http://example.com/first"))
	f2 := r.Submit(makeGetRequest(t, "http://example.com/second"))
	require.Eventually(t, func() bool { return len(pool.dispatchedRequests()) == 2 },
		time.Second, time.Millisecond)

	dispatched := pool.dispatchedRequests()

	// Results come back in reverse order.
	pool.sendResult(PoolResult{
		Token:    dispatched[1].Token,
		Response: &http.Response{StatusCode: http.StatusAccepted, Body: http.NoBody, Request: dispatched[1].Request},
	})
	pool.sendResult(PoolResult{
		Token:    dispatched[0].Token,
		Response: &http.Response{StatusCode: http.StatusCreated, Body: http.NoBody, Request: dispatched[0].Request},
	})

	resp1, err := waitFuture(t, f1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp1.StatusCode)

	resp2, err := waitFuture(t, f2)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp2.StatusCode)
}

func TestQueueResponderErrorResultResolvesFuture(t *testing.T) {
	pool := newMockPool(false)
	r, err := NewQueueResponder(pool, 10, 1000)
	require.NoError(t, err)
	defer r.Shutdown()

	future := r.Submit(makeGetRequest(t, "http://example.com/"))
	require.Eventually(t, func() bool { return len(pool.dispatchedRequests()) == 1 },
		time.Second, time.Millisecond)

	transportErr := errors.New("connection refused")
	pool.sendResult(PoolResult{Token: pool.dispatchedRequests()[0].Token, Err: transportErr})

	_, err = waitFuture(t, future)
	require.ErrorIs(t, err, transportErr)
	require.False(t, IsRetryable(err))
}

func TestQueueResponderNon2xxResolvesNormally(t *testing.T) {
	pool := newMockPool(false)
	r, err := NewQueueResponder(pool, 10, 1000)
	require.NoError(t, err)
	defer r.Shutdown()

	future := r.Submit(makeGetRequest(t, "http://example.com/"))
	require.Eventually(t, func() bool { return len(pool.dispatchedRequests()) == 1 },
		time.Second, time.Millisecond)

	pool.sendResult(PoolResult{
		Token:    pool.dispatchedRequests()[0].Token,
		Response: &http.Response{StatusCode: http.StatusServiceUnavailable, Body: http.NoBody},
	})

	resp, err := waitFuture(t, future)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestQueueResponderUnknownTokenLogged(t *testing.T) {
	pool := newMockPool(false)
	logRecorder := logtest.NewRecorder()
	r, err := NewQueueResponderWithOpts(pool, QueueResponderOpts{
		QueueSize: 10,
		RateLimit: 1000,
		Logger:    logRecorder,
	})
	require.NoError(t, err)
	defer r.Shutdown()

	body := &closeRecordingBody{Reader: strings.NewReader("stray")}
	pool.sendResult(PoolResult{
		Token:    NewCorrelationToken(),
		Response: &http.Response{StatusCode: http.StatusOK, Body: body},
	})

	require.Eventually(t, func() bool {
		_, found := logRecorder.FindEntry("received result for unknown correlation token")
		return found
	}, time.Second, time.Millisecond)

	// The stray body must be closed.
	require.True(t, body.closed.Load())
}

type closeRecordingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *closeRecordingBody) Close() error {
	b.closed.Store(true)
	return nil
}

func TestQueueResponderHostMismatch(t *testing.T) {
	pool := newMockPool(true)
	r, err := NewQueueResponderWithOpts(pool, QueueResponderOpts{
		QueueSize:  10,
		RateLimit:  1000,
		TargetHost: "*.example.com",
	})
	require.NoError(t, err)
	defer r.Shutdown()

	future := r.Submit(makeGetRequest(t, "http://api.example.com/v1"))
	_, err = waitFuture(t, future)
	require.NoError(t, err)

	future = r.Submit(makeGetRequest(t, "http://evil.org/v1"))
	_, err = waitFuture(t, future)
	var mismatchErr *HostMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	require.Equal(t, "evil.org", mismatchErr.RequestHost)
	require.False(t, IsRetryable(err))
}

func TestQueueResponderRateLimiting(t *testing.T) {
	pool := newMockPool(true)
	const rateLimit = 100
	r, err := NewQueueResponder(pool, 100, rateLimit)
	require.NoError(t, err)
	defer r.Shutdown()

	const total = 10
	futures := make([]*Future, 0, total)
	startedAt := time.Now()
	for i := 0; i < total; i++ {
		futures = append(futures, r.Submit(makeGetRequest(t, "http://example.com/")))
	}
	for _, f := range futures {
		_, err := waitFuture(t, f)
		require.NoError(t, err)
	}
	elapsed := time.Since(startedAt)

	// 10 dispatches at 100/s with burst 1: the first is immediate,
	// the remaining 9 are paced at 10ms each.
	require.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second)
}

func TestQueueResponderConcurrentSubmit(t *testing.T) {
	pool := newMockPool(true)
	r, err := NewQueueResponder(pool, 1000, 100000)
	require.NoError(t, err)
	defer r.Shutdown()

	const goroutines = 20
	const perGoroutine = 10
	var wg sync.WaitGroup
	futures := make(chan *Future, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				req, reqErr := http.NewRequest(http.MethodGet, "http://example.com/", nil)
				if reqErr != nil {
					continue
				}
				futures <- r.Submit(req)
			}
		}()
	}
	wg.Wait()
	close(futures)

	for f := range futures {
		_, err := waitFuture(t, f)
		require.NoError(t, err)
	}
	require.Len(t, pool.dispatchedRequests(), goroutines*perGoroutine)
}

func TestQueueResponderDispatchErrorPassedThrough(t *testing.T) {
	pool := newMockPool(false)
	dispatchErr := errors.New("pool rejected the request")
	pool.dispatchErr = dispatchErr
	r, err := NewQueueResponder(pool, 10, 1000)
	require.NoError(t, err)
	defer r.Shutdown()

	future := r.Submit(makeGetRequest(t, "http://example.com/"))
	_, err = waitFuture(t, future)
	require.ErrorIs(t, err, dispatchErr)
}

func TestNewQueueResponderValidation(t *testing.T) {
	tests := []struct {
		Name       string
		Opts       QueueResponderOpts
		WantErrMsg string
	}{
		{
			Name:       "queue size is zero",
			Opts:       QueueResponderOpts{QueueSize: 0, RateLimit: 1},
			WantErrMsg: "queue size must be positive",
		},
		{
			Name:       "rate limit is negative",
			Opts:       QueueResponderOpts{QueueSize: 1, RateLimit: -1},
			WantErrMsg: "rate limit must be positive",
		},
		{
			Name:       "unknown alg",
			Opts:       QueueResponderOpts{QueueSize: 1, RateLimit: 1, RateLimitAlg: "fixed_window"},
			WantErrMsg: `unknown rate limit alg "fixed_window"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			r, err := NewQueueResponderWithOpts(newMockPool(true), tt.Opts)
			require.Nil(t, r)
			require.ErrorContains(t, err, tt.WantErrMsg)
		})
	}
}

func TestQueueResponderRateLimitAlgs(t *testing.T) {
	for _, alg := range []string{RateLimitAlgTokenBucket, RateLimitAlgLeakyBucket, RateLimitAlgSlidingWindow} {
		t.Run(alg, func(t *testing.T) {
			pool := newMockPool(true)
			r, err := NewQueueResponderWithOpts(pool, QueueResponderOpts{
				QueueSize:    10,
				RateLimit:    1000,
				RateLimitAlg: alg,
			})
			require.NoError(t, err)
			defer r.Shutdown()

			future := r.Submit(makeGetRequest(t, "http://example.com/"))
			_, err = waitFuture(t, future)
			require.NoError(t, err)
		})
	}
}

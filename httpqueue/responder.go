/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-webkit/internal/ratelimit"
	"github.com/acronis/go-webkit/log"
)

// Responder accepts outbound HTTP requests for execution against a single
// target host and returns a Future per request.
type Responder interface {
	Submit(req *http.Request) *Future
}

// QueueResponder admits requests into a bounded FIFO queue and dispatches
// them to a connection pool at a limited rate. Submit never blocks: when the
// queue is full or the responder is shut down, the returned Future is already
// failed with the corresponding typed error.
type QueueResponder struct {
	pool      ConnectionPool
	queue     chan queueItem
	queueSize int
	throttler ratelimit.Throttler

	matchHost  func(host string) bool
	targetHost string

	logger    log.FieldLogger
	collector MetricsCollector

	pendingMu sync.Mutex
	pending   map[CorrelationToken]pendingRequest

	closedMu   sync.RWMutex
	closed     bool
	stopCtx    context.Context
	stopCancel context.CancelFunc
	loopsWg    sync.WaitGroup
	stopOnce   sync.Once
}

var _ Responder = (*QueueResponder)(nil)

type queueItem struct {
	req    *http.Request
	future *Future
}

type pendingRequest struct {
	future    *Future
	startTime time.Time
}

// QueueResponderOpts represents an options for QueueResponder.
type QueueResponderOpts struct {
	// QueueSize is the queue capacity. Must be positive.
	QueueSize int

	// RateLimit is the maximum number of dispatches per second. Must be positive.
	RateLimit int

	// RateLimitBurst allows temporary spikes in dispatch rate. Defaults to 1.
	RateLimitBurst int

	// RateLimitAlg is the rate limiting algorithm: "token_bucket" (default),
	// "leaky_bucket" or "sliding_window".
	RateLimitAlg string

	// TargetHost restricts submissions to requests whose URL hostname matches
	// the pattern (glob syntax, e.g. "*.example.com"). Empty disables the check.
	TargetHost string

	// Logger is used for reporting internal inconsistencies. Defaults to a disabled logger.
	Logger log.FieldLogger

	// Collector collects metrics. Nil disables metrics collection.
	Collector MetricsCollector
}

// NewQueueResponder creates a new QueueResponder over the passed pool
// with the passed queue capacity and rate limit.
func NewQueueResponder(pool ConnectionPool, queueSize, rateLimit int) (*QueueResponder, error) {
	return NewQueueResponderWithOpts(pool, QueueResponderOpts{QueueSize: queueSize, RateLimit: rateLimit})
}

// NewQueueResponderWithOpts creates a new QueueResponder over the passed pool
// with the passed options. The responder owns the pool and shuts it down as
// part of its own Shutdown.
func NewQueueResponderWithOpts(pool ConnectionPool, opts QueueResponderOpts) (*QueueResponder, error) {
	if opts.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", opts.QueueSize)
	}
	if opts.RateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", opts.RateLimit)
	}

	throttler, err := makeThrottler(opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	collector := opts.Collector
	if collector == nil {
		collector = nullMetricsCollector{}
	}

	stopCtx, stopCancel := context.WithCancel(context.Background())
	r := &QueueResponder{
		pool:       pool,
		queue:      make(chan queueItem, opts.QueueSize),
		queueSize:  opts.QueueSize,
		throttler:  throttler,
		targetHost: opts.TargetHost,
		logger:     logger,
		collector:  collector,
		pending:    make(map[CorrelationToken]pendingRequest),
		stopCtx:    stopCtx,
		stopCancel: stopCancel,
	}
	if opts.TargetHost != "" {
		r.matchHost = glob.Compile(opts.TargetHost)
	}

	r.loopsWg.Add(2)
	go r.dispatchLoop()
	go r.routeResults()
	return r, nil
}

// NewQueueResponderForConfig creates a new QueueResponder with a TransportPool
// built from the passed configuration. When metrics are enabled in cfg, a
// Prometheus collector is created and registered in the default registry.
func NewQueueResponderForConfig(cfg *Config, logger log.FieldLogger) (*QueueResponder, error) {
	pool := NewTransportPoolWithOpts(TransportPoolOpts{Size: cfg.Pool.Size})
	var collector MetricsCollector
	if cfg.Metrics.Enabled {
		promCollector := NewPrometheusMetricsCollector("")
		promCollector.MustRegister()
		collector = promCollector
	}
	r, err := NewQueueResponderWithOpts(pool, QueueResponderOpts{
		QueueSize:      cfg.Queue.Size,
		RateLimit:      cfg.RateLimit.Limit,
		RateLimitBurst: cfg.RateLimit.Burst,
		RateLimitAlg:   cfg.RateLimit.Alg,
		TargetHost:     cfg.Host,
		Logger:         logger,
		Collector:      collector,
	})
	if err != nil {
		pool.Shutdown()
		return nil, err
	}
	return r, nil
}

func makeThrottler(opts QueueResponderOpts) (ratelimit.Throttler, error) {
	rate := ratelimit.PerSecond(opts.RateLimit)
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	switch opts.RateLimitAlg {
	case "", RateLimitAlgTokenBucket:
		return ratelimit.NewTokenBucketThrottler(rate, burst), nil
	case RateLimitAlgLeakyBucket:
		return ratelimit.NewLeakyBucketThrottler(rate, burst-1)
	case RateLimitAlgSlidingWindow:
		return ratelimit.NewSlidingWindowThrottler(rate), nil
	default:
		return nil, fmt.Errorf("unknown rate limit alg %q", opts.RateLimitAlg)
	}
}

// Submit admits the request into the queue and returns a Future that resolves
// with the request's outcome. It never blocks. If the request cannot be
// admitted, the returned Future is already failed: with *QueueFullError when
// the queue is at capacity, with *PoolShutdownError after Shutdown, or with
// *HostMismatchError when the request targets a foreign host.
func (r *QueueResponder) Submit(req *http.Request) *Future {
	if r.matchHost != nil && !r.matchHost(req.URL.Hostname()) {
		return failedFuture(&HostMismatchError{RequestHost: req.URL.Hostname(), TargetHost: r.targetHost})
	}

	// Admission is guarded so that no request can slip into the queue after
	// Shutdown has drained it.
	r.closedMu.RLock()
	defer r.closedMu.RUnlock()
	if r.closed {
		r.collector.RequestRejected(RejectionReasonShutdown)
		return failedFuture(&PoolShutdownError{})
	}

	item := queueItem{req: req, future: newFuture()}
	select {
	case r.queue <- item:
		r.collector.QueueLen(len(r.queue))
		return item.future
	default:
		r.collector.RequestRejected(RejectionReasonQueueFull)
		return failedFuture(&QueueFullError{QueueSize: r.queueSize})
	}
}

// Shutdown stops the responder: queued requests and requests already handed
// to the pool are failed with *PoolShutdownError, in-flight pool requests are
// awaited and resolved normally. Idempotent; returns after all futures are
// resolved.
func (r *QueueResponder) Shutdown() {
	r.stopOnce.Do(func() {
		r.closedMu.Lock()
		r.closed = true
		r.closedMu.Unlock()
		r.stopCancel()
		r.loopsWg.Wait()

		for {
			select {
			case item := <-r.queue:
				item.future.complete(nil, &PoolShutdownError{})
				r.collector.RequestRejected(RejectionReasonShutdown)
			default:
				r.collector.QueueLen(0)
				return
			}
		}
	})
}

// dispatchLoop is the single egress pipeline: it takes queued items in FIFO
// order, waits for the throttler and hands them to the pool.
func (r *QueueResponder) dispatchLoop() {
	defer r.loopsWg.Done()
	defer r.pool.Shutdown()
	for {
		select {
		case <-r.stopCtx.Done():
			return
		case item := <-r.queue:
			r.collector.QueueLen(len(r.queue))
			if err := r.throttler.Wait(r.stopCtx); err != nil {
				item.future.complete(nil, &PoolShutdownError{})
				return
			}
			r.dispatch(item)
		}
	}
}

func (r *QueueResponder) dispatch(item queueItem) {
	token := NewCorrelationToken()

	// The result may arrive before Dispatch returns, so the pending entry is
	// registered first and removed again on dispatch failure.
	r.pendingMu.Lock()
	r.pending[token] = pendingRequest{future: item.future, startTime: time.Now()}
	r.pendingMu.Unlock()

	if err := r.pool.Dispatch(PoolRequest{Token: token, Request: item.req}); err != nil {
		r.pendingMu.Lock()
		delete(r.pending, token)
		r.pendingMu.Unlock()
		item.future.complete(nil, err)
	}
}

// routeResults resolves futures with the results coming back from the pool.
// It exits when the pool closes its results channel and fails the requests
// that never got a result.
func (r *QueueResponder) routeResults() {
	defer r.loopsWg.Done()
	for res := range r.pool.Results() {
		r.resolve(res)
	}

	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for token, p := range r.pending {
		delete(r.pending, token)
		p.future.complete(nil, &PoolShutdownError{})
	}
}

func (r *QueueResponder) resolve(res PoolResult) {
	r.pendingMu.Lock()
	p, ok := r.pending[res.Token]
	if ok {
		delete(r.pending, res.Token)
	}
	r.pendingMu.Unlock()

	if !ok {
		// Duplicate or unknown token. The pool must report each token exactly once.
		r.logger.Error("received result for unknown correlation token",
			log.String("correlation_token", string(res.Token)))
		if res.Response != nil {
			_ = res.Response.Body.Close()
		}
		return
	}

	status := "0"
	host := ""
	if res.Response != nil {
		status = strconv.Itoa(res.Response.StatusCode)
		if res.Response.Request != nil {
			host = res.Response.Request.URL.Hostname()
		}
	}
	r.collector.RequestDuration(host, status, p.startTime)
	p.future.complete(res.Response, res.Err)
}

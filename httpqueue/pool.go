/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"
)

// CorrelationToken identifies a request while it traverses the connection
// pool. Each submitted request gets a unique token, and the pool reports its
// result under the same token.
type CorrelationToken string

// NewCorrelationToken generates a new unique correlation token.
func NewCorrelationToken() CorrelationToken {
	return CorrelationToken(xid.New().String())
}

// PoolRequest is a request handed to a connection pool together with its
// correlation token.
type PoolRequest struct {
	Token   CorrelationToken
	Request *http.Request
}

// PoolResult is the outcome of a single pool request. Exactly one of
// Response and Err is set.
type PoolResult struct {
	Token    CorrelationToken
	Response *http.Response
	Err      error
}

// ConnectionPool executes requests against a single target host.
// Dispatch order is preserved on input; results may arrive in any order on
// the Results channel. The Results channel is closed after Shutdown once all
// in-flight requests have reported.
type ConnectionPool interface {
	Dispatch(req PoolRequest) error
	Results() <-chan PoolResult
	Shutdown()
}

// DefaultTransportPoolSize is the default number of parallel connections
// a TransportPool keeps to the target host.
const DefaultTransportPoolSize = 8

// TransportPoolOpts represents an options for TransportPool.
type TransportPoolOpts struct {
	// Size is the number of parallel connections (and worker goroutines).
	Size int

	// TLSClientConfig specifies the TLS configuration to use.
	TLSClientConfig *tls.Config

	// ResponseHeaderTimeout, if non-zero, bounds the wait for a server's
	// response headers after the request is fully written.
	ResponseHeaderTimeout time.Duration
}

// TransportPool is a ConnectionPool over http.Transport with a fixed number
// of parallel connections to one target host.
type TransportPool struct {
	transport *http.Transport
	requests  chan PoolRequest
	results   chan PoolResult
	stop      chan struct{}
	closed    *atomic.Bool
	workersWg sync.WaitGroup
	stopOnce  sync.Once
}

var _ ConnectionPool = (*TransportPool)(nil)

// NewTransportPool creates a new TransportPool with default options.
func NewTransportPool() *TransportPool {
	return NewTransportPoolWithOpts(TransportPoolOpts{})
}

// NewTransportPoolWithOpts creates a new TransportPool with the passed options.
func NewTransportPoolWithOpts(opts TransportPoolOpts) *TransportPool {
	size := opts.Size
	if size <= 0 {
		size = DefaultTransportPoolSize
	}
	p := &TransportPool{
		transport: &http.Transport{
			MaxConnsPerHost:       size,
			MaxIdleConnsPerHost:   size,
			TLSClientConfig:       opts.TLSClientConfig,
			ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		},
		requests: make(chan PoolRequest),
		results:  make(chan PoolResult, size),
		stop:     make(chan struct{}),
		closed:   atomic.NewBool(false),
	}
	p.workersWg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Dispatch hands the request to one of the pool's workers.
// It blocks while all workers are busy and returns *PoolShutdownError
// if the pool is shut down before a worker becomes available.
func (p *TransportPool) Dispatch(req PoolRequest) error {
	if p.closed.Load() {
		return &PoolShutdownError{}
	}
	select {
	case p.requests <- req:
		return nil
	case <-p.stop:
		return &PoolShutdownError{}
	}
}

// Results returns the channel carrying request outcomes.
func (p *TransportPool) Results() <-chan PoolResult {
	return p.results
}

// Shutdown stops accepting requests, waits for in-flight requests to report
// and closes the results channel. It is idempotent.
func (p *TransportPool) Shutdown() {
	p.stopOnce.Do(func() {
		p.closed.Store(true)
		close(p.stop)
		p.workersWg.Wait()
		close(p.results)
		p.transport.CloseIdleConnections()
	})
}

func (p *TransportPool) worker() {
	defer p.workersWg.Done()
	for {
		select {
		case <-p.stop:
			return
		case req := <-p.requests:
			resp, err := p.transport.RoundTrip(req.Request)
			p.results <- PoolResult{Token: req.Token, Response: resp, Err: err}
		}
	}
}

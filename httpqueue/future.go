/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"context"
	"net/http"
	"sync"
)

// Future is a single-assignment slot for the result of a submitted request.
// It is completed exactly once, either with a response or with an error.
type Future struct {
	done     chan struct{}
	once     sync.Once
	response *http.Response
	err      error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func failedFuture(err error) *Future {
	f := newFuture()
	f.complete(nil, err)
	return f
}

// complete resolves the future. Calls after the first are no-ops.
func (f *Future) complete(resp *http.Response, err error) bool {
	completed := false
	f.once.Do(func() {
		f.response = resp
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Done returns a channel that is closed when the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is resolved or ctx is done.
// The returned response, if any, has an unread body that the caller must close.
func (f *Future) Wait(ctx context.Context) (*http.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.response, f.err
	}
}

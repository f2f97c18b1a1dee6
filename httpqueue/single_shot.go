/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"net/http"
)

// Doer executes a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SingleShotResponder executes each submitted request immediately, without
// queueing or rate limiting. It is the degenerate baseline implementation of
// Responder, useful in tests and for low-volume targets.
type SingleShotResponder struct {
	client Doer
}

var _ Responder = (*SingleShotResponder)(nil)
var _ Doer = (*SingleShotResponder)(nil)

// NewSingleShotResponder creates a new SingleShotResponder over the passed
// client. A nil client means http.DefaultClient.
func NewSingleShotResponder(client Doer) *SingleShotResponder {
	if client == nil {
		client = http.DefaultClient
	}
	return &SingleShotResponder{client: client}
}

// Submit executes the request synchronously and returns an already resolved Future.
func (r *SingleShotResponder) Submit(req *http.Request) *Future {
	f := newFuture()
	f.complete(r.client.Do(req))
	return f
}

// Do executes the request. Implements Doer.
func (r *SingleShotResponder) Do(req *http.Request) (*http.Response, error) {
	return r.client.Do(req)
}

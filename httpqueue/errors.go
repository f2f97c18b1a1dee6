/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"errors"
	"fmt"
)

// QueueFullError is returned when a request cannot be admitted because the
// responder's queue is at capacity. The submission had no side effects and
// may be retried later.
type QueueFullError struct {
	QueueSize int
}

// Error returns a string representation of the error.
func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue is full (capacity %d), request was rejected", e.QueueSize)
}

// Retryable reports that the request may be submitted again.
func (e *QueueFullError) Retryable() bool {
	return true
}

// PoolShutdownError is returned when a request cannot be completed because
// the responder or its connection pool was shut down.
type PoolShutdownError struct{}

// Error returns a string representation of the error.
func (e *PoolShutdownError) Error() string {
	return "connection pool was shut down while running the request"
}

// Retryable reports that the request must not be submitted again.
func (e *PoolShutdownError) Retryable() bool {
	return false
}

// HostMismatchError is returned when the submitted request targets a host
// other than the one the responder is configured for.
type HostMismatchError struct {
	RequestHost string
	TargetHost  string
}

// Error returns a string representation of the error.
func (e *HostMismatchError) Error() string {
	return fmt.Sprintf("request host %q does not match target host %q", e.RequestHost, e.TargetHost)
}

// IsRetryable reports whether err carries a Retryable marker that allows
// the operation to be repeated. Errors without the marker are not retryable.
func IsRetryable(err error) bool {
	var marked interface{ Retryable() bool }
	if errors.As(err, &marked) {
		return marked.Retryable()
	}
	return false
}

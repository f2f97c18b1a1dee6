/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpqueue provides responders for outbound HTTP requests to a single
// target host. QueueResponder accepts requests into a bounded FIFO queue,
// paces their dispatch with a configurable rate limiter and hands them to a
// fixed-size connection pool; callers get back a Future that resolves once the
// pool returns the matching result. SingleShotResponder is the degenerate
// baseline without queueing or pacing.
package httpqueue

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpresp provides helpers for consuming HTTP responses: reading the
// body as text with a receive timeout, decoding JSON bodies into typed values
// and following a single redirect hop.
package httpresp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/acronis/go-webkit/config"
)

// BodyReadTimeoutError is returned when the response entity is not fully
// received within the allowed time.
type BodyReadTimeoutError struct {
	Timeout time.Duration
}

// Error returns a string representation of the error.
func (e *BodyReadTimeoutError) Error() string {
	return fmt.Sprintf("response body was not fully received within %s", e.Timeout)
}

// DecodeError is returned when the response body cannot be decoded into the
// target value. Body carries the raw text for diagnostics.
type DecodeError struct {
	Body  string
	Inner error
}

// Error returns a string representation of the error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response body: %v", e.Inner)
}

// Unwrap returns the underlying decoding error.
func (e *DecodeError) Unwrap() error {
	return e.Inner
}

// ReadBodyOpts represents an options for ReadBodyTextWithOpts.
type ReadBodyOpts struct {
	// Timeout bounds receiving the full entity. Zero means no limit.
	Timeout time.Duration

	// MaxSize limits how many bytes are read. Zero means no limit.
	MaxSize config.ByteSize
}

// ReadBodyText reads the response body as a UTF-8 string.
// The body is closed in all cases. *BodyReadTimeoutError is returned when the
// entity is not fully received within the timeout.
func ReadBodyText(resp *http.Response, timeout time.Duration) (string, error) {
	return ReadBodyTextWithOpts(resp, ReadBodyOpts{Timeout: timeout})
}

// ReadBodyTextWithOpts reads the response body as a UTF-8 string with the passed options.
func ReadBodyTextWithOpts(resp *http.Response, opts ReadBodyOpts) (string, error) {
	defer func() { _ = resp.Body.Close() }()

	var reader io.Reader = resp.Body
	if opts.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(opts.MaxSize))
	}

	if opts.Timeout <= 0 {
		data, err := io.ReadAll(reader)
		if err != nil {
			return "", fmt.Errorf("read response body: %w", err)
		}
		return string(data), nil
	}

	type readOutcome struct {
		data []byte
		err  error
	}
	outcomeCh := make(chan readOutcome, 1)
	go func() {
		data, err := io.ReadAll(reader)
		outcomeCh <- readOutcome{data, err}
	}()

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	select {
	case outcome := <-outcomeCh:
		if outcome.err != nil {
			return "", fmt.Errorf("read response body: %w", outcome.err)
		}
		return string(outcome.data), nil
	case <-timer.C:
		// Closing the body unblocks the reading goroutine.
		_ = resp.Body.Close()
		return "", &BodyReadTimeoutError{Timeout: opts.Timeout}
	}
}

// DecodeJSON reads the response body and decodes it into target.
// *DecodeError is returned on both syntax and shape failures, carrying the raw
// body text. *BodyReadTimeoutError is returned when the entity is not fully
// received within the timeout.
func DecodeJSON(resp *http.Response, timeout time.Duration, target interface{}) error {
	body, err := ReadBodyText(resp, timeout)
	if err != nil {
		return err
	}
	if err = json.Unmarshal([]byte(body), target); err != nil {
		return &DecodeError{Body: body, Inner: err}
	}
	return nil
}

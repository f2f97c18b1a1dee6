/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpresp

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Doer executes a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MissingLocationError is returned when a redirect response carries no
// Location header.
type MissingLocationError struct {
	StatusCode int
}

// Error returns a string representation of the error.
func (e *MissingLocationError) Error() string {
	return fmt.Sprintf("redirect response with status %d has no Location header", e.StatusCode)
}

// FollowRedirectOnce follows a single redirect hop. For 301, 302 and 303
// responses it re-issues exactly one GET request to the resolved Location and
// returns its result, closing the original response body. Responses with
// other statuses are returned unchanged. A redirect response without a
// Location header yields *MissingLocationError.
func FollowRedirectOnce(client Doer, resp *http.Response) (*http.Response, error) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
	default:
		return resp, nil
	}

	location := resp.Header.Get("Location")
	if location == "" {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &MissingLocationError{StatusCode: resp.StatusCode}
	}

	target, err := resolveLocation(resp, location)
	if err != nil {
		return nil, err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("make redirect request: %w", err)
	}
	if resp.Request != nil {
		req = req.WithContext(resp.Request.Context())
	}
	return client.Do(req)
}

func resolveLocation(resp *http.Response, location string) (*url.URL, error) {
	if resp.Request != nil && resp.Request.URL != nil {
		target, err := resp.Request.URL.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse redirect location %q: %w", location, err)
		}
		return target, nil
	}
	target, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse redirect location %q: %w", location, err)
	}
	return target, nil
}

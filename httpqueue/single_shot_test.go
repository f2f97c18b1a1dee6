/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingleShotResponderSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	r := NewSingleShotResponder(nil)
	future := r.Submit(makeGetRequest(t, server.URL))

	// The future is already resolved when Submit returns.
	select {
	case <-future.Done():
	default:
		t.Fatal("future should be resolved")
	}

	resp, err := waitFuture(t, future)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestSingleShotResponderDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte("ok"))
	}))
	defer server.Close()

	r := NewSingleShotResponder(server.Client())
	resp, err := r.Do(makeGetRequest(t, server.URL))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

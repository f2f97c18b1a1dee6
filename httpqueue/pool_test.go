/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransportPoolExecutesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte("ok"))
	}))
	defer server.Close()

	pool := NewTransportPool()
	defer pool.Shutdown()

	token := NewCorrelationToken()
	require.NoError(t, pool.Dispatch(PoolRequest{Token: token, Request: makeGetRequest(t, server.URL)}))

	select {
	case res := <-pool.Results():
		require.Equal(t, token, res.Token)
		require.NoError(t, res.Err)
		require.Equal(t, http.StatusOK, res.Response.StatusCode)
		_ = res.Response.Body.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("no result received")
	}
}

func TestTransportPoolReportsTransportErrors(t *testing.T) {
	pool := NewTransportPoolWithOpts(TransportPoolOpts{Size: 1})
	defer pool.Shutdown()

	token := NewCorrelationToken()
	req := makeGetRequest(t, "http://127.0.0.1:1/unreachable")
	require.NoError(t, pool.Dispatch(PoolRequest{Token: token, Request: req}))

	select {
	case res := <-pool.Results():
		require.Equal(t, token, res.Token)
		require.Error(t, res.Err)
		require.Nil(t, res.Response)
	case <-time.After(5 * time.Second):
		t.Fatal("no result received")
	}
}

func TestTransportPoolParallelism(t *testing.T) {
	const poolSize = 4

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}))
	defer server.Close()

	pool := NewTransportPoolWithOpts(TransportPoolOpts{Size: poolSize})
	defer pool.Shutdown()

	const total = poolSize * 3
	go func() {
		for i := 0; i < total; i++ {
			_ = pool.Dispatch(PoolRequest{Token: NewCorrelationToken(), Request: makeGetRequest(t, server.URL)})
		}
	}()

	for i := 0; i < total; i++ {
		select {
		case res := <-pool.Results():
			require.NoError(t, res.Err)
			_ = res.Response.Body.Close()
		case <-time.After(10 * time.Second):
			t.Fatal("not all results received")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, maxInFlight, 1)
	require.LessOrEqual(t, maxInFlight, poolSize)
}

func TestTransportPoolDispatchAfterShutdown(t *testing.T) {
	pool := NewTransportPool()
	pool.Shutdown()

	err := pool.Dispatch(PoolRequest{Token: NewCorrelationToken(), Request: makeGetRequest(t, "http://example.com/")})
	var shutdownErr *PoolShutdownError
	require.ErrorAs(t, err, &shutdownErr)

	_, open := <-pool.Results()
	require.False(t, open)
}

func TestTransportPoolShutdownIdempotent(t *testing.T) {
	pool := NewTransportPool()
	pool.Shutdown()
	pool.Shutdown()
}

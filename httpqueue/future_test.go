/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFutureCompletedExactlyOnce(t *testing.T) {
	f := newFuture()
	resp := &http.Response{StatusCode: http.StatusOK}
	require.True(t, f.complete(resp, nil))
	require.False(t, f.complete(nil, errors.New("late error")))

	gotResp, err := f.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, resp, gotResp)
}

func TestFutureWaitRespectsContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The future itself is still unresolved and can be completed later.
	require.True(t, f.complete(nil, errors.New("request failed")))
	_, err = f.Wait(context.Background())
	require.EqualError(t, err, "request failed")
}

func TestFutureDoneChannel(t *testing.T) {
	f := newFuture()
	select {
	case <-f.Done():
		t.Fatal("future should not be resolved yet")
	default:
	}

	f.complete(nil, errors.New("boom"))
	select {
	case <-f.Done():
	default:
		t.Fatal("future should be resolved")
	}
}

func TestFailedFuture(t *testing.T) {
	wantErr := errors.New("rejected")
	f := failedFuture(wantErr)
	resp, err := f.Wait(context.Background())
	require.Nil(t, resp)
	require.ErrorIs(t, err, wantErr)
}

package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-payments/internal/resilience"
)

func TestBreakerOpensOnFailureRatio(t *testing.T) {
	b := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)

	require.True(t, b.Allow())
	b.Report(false)
	require.True(t, b.Allow())
	b.Report(false)

	require.False(t, b.Allow(), "breaker should reject while open")
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := resilience.NewBreaker(1, 0.5, 10*time.Millisecond)
	b.Report(false)
	require.False(t, b.Allow())

	time.Sleep(15 * time.Millisecond)
	require.True(t, b.Allow(), "cool-off elapsed, probe should pass")
	b.Report(true)
	require.True(t, b.Allow(), "successful probe closes the breaker")
}

func TestHTTPClientRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(10, 0.9, time.Second),
		BaseBackoff: time.Millisecond,
		MaxAttempts: 3,
		Timeout:     time.Second,
	}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientOpenBreakerShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	b := resilience.NewBreaker(1, 0.5, time.Minute)
	b.Report(false)

	client := resilience.HTTPClient{Client: srv.Client(), Breaker: b, MaxAttempts: 2}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
}

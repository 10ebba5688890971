package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-payments/internal/ratelimit"
)

func newLimiter(t *testing.T) ratelimit.Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return ratelimit.Limiter{Client: client, Prefix: "rl:"}
}

func TestLimiterEnforcesMax(t *testing.T) {
	limiter := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, _, err := limiter.Allow(ctx, "client-a", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should pass", i+1)
	}
	allowed, remaining, _, err := limiter.Allow(ctx, "client-a", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 0, remaining)
}

func TestLimiterIsolatesKeys(t *testing.T) {
	limiter := newLimiter(t)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "client-a", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _, err = limiter.Allow(ctx, "client-b", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed, "second key must not share the first key's window")
}

func TestMiddlewareRejectsWithHeaders(t *testing.T) {
	limiter := newLimiter(t)
	handler := ratelimit.Handler{
		Limiter: limiter,
		Config: ratelimit.Config{
			Key:    func(*http.Request) string { return "fixed" },
			Window: time.Minute,
			Max:    1,
		},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	wrapped := handler.Middleware(next)

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Equal(t, "1", second.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, second.Header().Get("Retry-After"))
}

package account

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func limitedRequest(handler http.Handler, ip string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, "/sign-in", nil)
	request.Header.Set("X-Forwarded-For", ip)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestSignInRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewSignInRateLimiter(2, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	require.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.1").Code)
	require.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.1").Code)

	blocked := limitedRequest(handler, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	require.NotEmpty(t, blocked.Header().Get("Retry-After"))
}

func TestSignInRateLimiterIsolatesClients(t *testing.T) {
	limiter := NewSignInRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	require.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, limitedRequest(handler, "10.0.0.1").Code)
	require.Equal(t, http.StatusOK, limitedRequest(handler, "10.0.0.2").Code)
}

func TestSignInRateLimiterDefaults(t *testing.T) {
	limiter := NewSignInRateLimiter(0, 0)

	require.Equal(t, 10, limiter.burst)
}

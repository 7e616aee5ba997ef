package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: false})(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql/blog", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitMiddleware_BurstExceeded(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/graphql/blog", nil)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1, PerClient: true})(okHandler())

	serve := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/graphql/blog", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve("10.0.0.1:1111"))
	assert.Equal(t, http.StatusTooManyRequests, serve("10.0.0.1:2222"), "same host, different port")
	assert.Equal(t, http.StatusOK, serve("10.0.0.2:1111"))
}

func TestTokenBucket_Refills(t *testing.T) {
	start := time.Unix(0, 0)
	b := &tokenBucket{tokens: 1, last: start}

	assert.True(t, b.take(start, 2, 1))
	assert.False(t, b.take(start, 2, 1))
	assert.True(t, b.take(start.Add(500*time.Millisecond), 2, 1))
	assert.False(t, b.take(start.Add(600*time.Millisecond), 2, 1))
	assert.True(t, b.take(start.Add(10*time.Second), 2, 1), "tokens are capped at burst")
	assert.False(t, b.take(start.Add(10*time.Second), 2, 1))
}

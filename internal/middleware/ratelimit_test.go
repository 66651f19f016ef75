package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func doRequest(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/check", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIPRateLimiterBudget(t *testing.T) {
	rl := NewIPRateLimiter(3, discardLogger())
	handler := rl.Handler(protectedHandler())

	for i := 0; i < 3; i++ {
		rec := doRequest(handler, "192.0.2.1:5000")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be within budget", i+1)
	}

	rec := doRequest(handler, "192.0.2.1:5000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"msg":"Too many requests"}`, rec.Body.String())
}

func TestIPRateLimiterIsolatesOrigins(t *testing.T) {
	rl := NewIPRateLimiter(1, discardLogger())
	handler := rl.Handler(protectedHandler())

	assert.Equal(t, http.StatusOK, doRequest(handler, "192.0.2.1:5000").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(handler, "192.0.2.1:6000").Code,
		"same IP on a different port shares the budget")

	assert.Equal(t, http.StatusOK, doRequest(handler, "192.0.2.2:5000").Code,
		"a different IP has its own budget")
}

func TestIPRateLimiterEvictsIdleOrigins(t *testing.T) {
	rl := NewIPRateLimiter(1, discardLogger())

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("192.0.2.1"))
	assert.False(t, rl.allow("192.0.2.1"))

	now = base.Add(originIdleTTL + time.Second)
	rl.evictIdle(now)

	rl.mu.Lock()
	_, tracked := rl.origins["192.0.2.1"]
	rl.mu.Unlock()
	assert.False(t, tracked, "idle origin should have been evicted")
}

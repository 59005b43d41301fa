package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newLimited(t *testing.T, cfg RateLimitConfig) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return RateLimit(ctx, cfg)(okHandler())
}

func post(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := newLimited(t, RateLimitConfig{Max: 5, Window: time.Minute})

	for i := range 5 {
		w := post(h, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := newLimited(t, RateLimitConfig{Max: 2, Window: time.Minute})

	for range 2 {
		require.Equal(t, http.StatusOK, post(h, "10.0.0.1:9999").Code)
	}

	w := post(h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body["code"])
}

func TestRateLimit_ReadsPassThrough(t *testing.T) {
	h := newLimited(t, RateLimitConfig{Max: 1, Window: time.Minute})

	for range 10 {
		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req.RemoteAddr = "10.0.0.2:1"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_DifferentClients(t *testing.T) {
	h := newLimited(t, RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, post(h, "10.0.0.3:1").Code)
	assert.Equal(t, http.StatusOK, post(h, "10.0.0.4:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(h, "10.0.0.3:2").Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := newLimited(t, RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-User-ID")
		},
	})

	send := func(user, remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User-ID", user)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("alice", "1.1.1.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice", "2.2.2.2:1"))
	assert.Equal(t, http.StatusOK, send("bob", "1.1.1.1:1"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.1.1.1:5000"
	assert.Equal(t, "10.1.1.1", clientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.1")
	assert.Equal(t, "172.16.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestRateLimit_EvictIdleClients(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Second})
	now := time.Now()
	rl.reserve("a", now)
	rl.reserve("b", now.Add(900*time.Millisecond))

	rl.evict(now.Add(1500 * time.Millisecond))
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLimiter_Allow(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLimiter(3, time.Minute, 3)
	defer l.Close()

	for i := 0; i < 3; i++ {
		result := l.Allow("1.2.3.4")
		require.True(t, result.Allowed, "request %d", i)
		assert.Equal(t, 3, result.Limit)
		assert.Equal(t, 2-i, result.Remaining)
		assert.Zero(t, result.RetryAfter)
	}

	result := l.Allow("1.2.3.4")
	assert.False(t, result.Allowed)
	assert.Equal(t, 20*time.Second, result.RetryAfter)
	assert.True(t, result.ResetAt.After(time.Now()))

	// other keys have their own bucket
	assert.True(t, l.Allow("5.6.7.8").Allowed)
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(60, time.Minute, 1)
	defer l.Close()

	l.Allow("idle")
	l.mu.Lock()
	l.buckets["idle"].lastSeen = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	// the bucket is not refilled yet
	l.cleanup(time.Now())
	assert.Len(t, l.buckets, 1)

	time.Sleep(1100 * time.Millisecond)
	l.cleanup(time.Now())
	assert.Empty(t, l.buckets)
}

func TestLimiter_CloseTwice(t *testing.T) {
	l := NewLimiter(1, time.Second, 1)
	l.Close()
	assert.NotPanics(t, l.Close)
}

func TestWriteRateLimitHeaders(t *testing.T) {
	reset := time.Unix(1700000000, 0)

	w := httptest.NewRecorder()
	WriteRateLimitHeaders(w, RateLimitResult{Allowed: true, Limit: 10, Remaining: 4, ResetAt: reset})
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000000", w.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	WriteRateLimitHeaders(w, RateLimitResult{Limit: 10, ResetAt: reset, RetryAfter: 6 * time.Second})
	assert.Equal(t, "6", w.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", ClientIP(r))

	r.RemoteAddr = "10.0.0.7"
	assert.Equal(t, "10.0.0.7", ClientIP(r))
}

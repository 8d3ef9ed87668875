package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// frozenLimiter returns a limiter whose clock only moves when advance is called
func frozenLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, func(time.Duration)) {
	t.Helper()
	rl := NewRateLimiter(limit, window)
	t.Cleanup(rl.Stop)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, func(d time.Duration) { now = now.Add(d) }
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst up to the limit then refuse", func(t *testing.T) {
		rl, _ := frozenLimiter(t, 3, time.Minute)
		assert.True(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.1"))
		assert.False(t, rl.Allow("10.0.0.1"))
		assert.Equal(t, 0, rl.Remaining("10.0.0.1"))
	})

	t.Run("clients are independent", func(t *testing.T) {
		rl, _ := frozenLimiter(t, 1, time.Minute)
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
		assert.Equal(t, 1, rl.Remaining("unknown"))
	})

	t.Run("tokens refill over the window", func(t *testing.T) {
		rl, advance := frozenLimiter(t, 2, time.Minute)
		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		advance(30 * time.Second)
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
	})

	t.Run("idle clients are evicted", func(t *testing.T) {
		rl, advance := frozenLimiter(t, 2, time.Minute)
		rl.Allow("a")
		advance(time.Minute)
		rl.Allow("b")
		advance(90 * time.Second)
		rl.evictIdle()
		assert.Equal(t, 1, rl.Len())
	})

	t.Run("invalid arguments fall back to sane values", func(t *testing.T) {
		rl := NewRateLimiter(0, 0)
		defer rl.Stop()
		assert.Equal(t, 1, rl.limit)
		assert.Equal(t, time.Minute, rl.window)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := frozenLimiter(t, 2, time.Minute)
	r := okRouter(RateLimit(rl))

	w := serve(r, http.MethodGet, "/test", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/test", nil).Code)

	w = serve(r, http.MethodGet, "/test", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "ERR_RATE_LIMITED")
}

func TestRateLimitByKey(t *testing.T) {
	rl, _ := frozenLimiter(t, 1, time.Minute)
	r := okRouter(RateLimitByKey(rl, func(c *gin.Context) string { return c.GetHeader("X-Client") }))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/test", map[string]string{"X-Client": "pos-1"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/test", map[string]string{"X-Client": "pos-1"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/test", map[string]string{"X-Client": "pos-2"}).Code)
}

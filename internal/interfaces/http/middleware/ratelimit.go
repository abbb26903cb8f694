package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omnihub/backend/internal/interfaces/http/dto"
)

// IntakeLimiter is a fixed-window per-key counter protecting the webhook
// intake endpoints from floods. It is deliberately simpler than the
// outbound dispatch limiter: inbound abuse only needs a cheap cutoff.
type IntakeLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*intakeWindow
}

type intakeWindow struct {
	count   int
	resetAt time.Time
}

// NewIntakeLimiter creates a limiter allowing limit requests per key per
// window.
func NewIntakeLimiter(limit int, window time.Duration) *IntakeLimiter {
	return &IntakeLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*intakeWindow),
	}
}

// Allow reports whether the key may proceed, counting the attempt.
func (l *IntakeLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.After(w.resetAt) {
		// Piggyback a sweep of dead windows on window rollover.
		if len(l.windows) > 1024 {
			for k, old := range l.windows {
				if now.After(old.resetAt) {
					delete(l.windows, k)
				}
			}
		}
		l.windows[key] = &intakeWindow{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// RateLimitByKey returns a middleware limiting requests per keyFunc value.
func RateLimitByKey(limiter *IntakeLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(keyFunc(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeRateLimited,
					"Too many requests", GetRequestID(c)))
			return
		}
		c.Next()
	}
}

// RateLimitByClientIP limits requests per client IP.
func RateLimitByClientIP(limiter *IntakeLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

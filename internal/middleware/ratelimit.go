package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RateLimiter throttles a route group with a fixed window per caller. A call
// carrying an authenticated identity is counted against the user, so one
// user's burst never starves others behind the same NAT; anonymous calls fall
// back to the remote address.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	callers map[string]*callerWindow
	sweepAt time.Time
}

type callerWindow struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		callers: make(map[string]*callerWindow),
		sweepAt: time.Now().Add(window),
	}
}

// callerKey prefers the user id the JWT middleware put on the context; the
// limiter must therefore be mounted after it on authenticated routes.
func callerKey(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != uuid.Nil {
		return "user:" + userID.String()
	}
	return "addr:" + r.RemoteAddr
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Expired windows are pruned in passing, at most once per window.
	if now.After(rl.sweepAt) {
		for k, c := range rl.callers {
			if now.After(c.resetAt) {
				delete(rl.callers, k)
			}
		}
		rl.sweepAt = now.Add(rl.window)
	}

	c, ok := rl.callers[key]
	if !ok || now.After(c.resetAt) {
		rl.callers[key] = &callerWindow{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	c.count++
	return c.count <= rl.limit
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(callerKey(r), time.Now()) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

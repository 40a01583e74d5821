// Package ratelimit provides a fixed-window rate limiter keyed by action
// type. Counters live on an explicit, injectable service object rather than
// in ambient session state.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type window struct {
	count     int
	resetTime time.Time
}

// Limiter enforces a per-action request limit over a fixed one-hour window.
// Safe for concurrent use.
type Limiter struct {
	mu           sync.Mutex
	limitPerHour int
	windows      map[string]*window
	now          func() time.Time
}

// New creates a limiter. limitPerHour <= 0 disables limiting.
func New(limitPerHour int) *Limiter {
	return &Limiter{
		limitPerHour: limitPerHour,
		windows:      make(map[string]*window),
		now:          time.Now,
	}
}

// Allow records one occurrence of the action and reports whether it is
// within the limit. The window resets one hour after its first request.
func (l *Limiter) Allow(action string) bool {
	if l.limitPerHour <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[action]
	if !ok || now.After(w.resetTime) {
		w = &window{resetTime: now.Add(time.Hour)}
		l.windows[action] = w
	}
	if w.count >= l.limitPerHour {
		return false
	}
	w.count++
	return true
}

// Remaining reports how many requests are left in the current window.
func (l *Limiter) Remaining(action string) int {
	if l.limitPerHour <= 0 {
		return -1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[action]
	if !ok || l.now().After(w.resetTime) {
		return l.limitPerHour
	}
	remaining := l.limitPerHour - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Middleware limits requests per HTTP method and route, answering 429 when
// the window is exhausted.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			action := c.Request().Method + " " + c.Path()
			if !l.Allow(action) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

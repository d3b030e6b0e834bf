package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-client sliding-window limiter for the public,
// unauthenticated endpoints. In-memory is enough: the limit is per instance
// and exists to blunt scripted abuse, not to meter API usage.
type RateLimiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	limit   int
	window  time.Duration
	lastGC  time.Time
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for the client and reports whether it is within limit.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	recent := rl.hits[client][:0]
	for _, t := range rl.hits[client] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.limit {
		rl.hits[client] = recent
		return false
	}
	rl.hits[client] = append(recent, now)

	if now.Sub(rl.lastGC) > rl.window {
		rl.gc(cutoff)
		rl.lastGC = now
	}
	return true
}

// gc drops clients whose entire window has expired. Caller holds the lock.
func (rl *RateLimiter) gc(cutoff time.Time) {
	for client, times := range rl.hits {
		alive := false
		for _, t := range times {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(rl.hits, client)
		}
	}
}

// Middleware enforces the limit keyed by client IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !rl.Allow(ip) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

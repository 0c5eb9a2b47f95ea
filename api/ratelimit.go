package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// One analyze upload can fan out into thousands of TMDB lookups, so the
// endpoint is rate limited per client IP well below the HTTP layer's
// capacity.

type uploadLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UploadLimiter manages per-IP rate limiters for the analyze endpoint.
type UploadLimiter struct {
	mu       sync.Mutex
	limiters map[string]*uploadLimiterEntry
	rate     rate.Limit
	burst    int
}

// NewUploadLimiter creates a limiter allowing r events per second with the
// given burst. For "3 uploads per minute" pass rate.Every(20*time.Second)
// with burst 3.
func NewUploadLimiter(r rate.Limit, burst int) *UploadLimiter {
	ul := &UploadLimiter{
		limiters: make(map[string]*uploadLimiterEntry),
		rate:     r,
		burst:    burst,
	}
	go ul.cleanup()
	return ul
}

func (ul *UploadLimiter) getLimiter(ip string) *rate.Limiter {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	entry, exists := ul.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(ul.rate, ul.burst)
		ul.limiters[ip] = &uploadLimiterEntry{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// cleanup evicts entries not seen in the last 10 minutes.
func (ul *UploadLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ul.mu.Lock()
		for ip, entry := range ul.limiters {
			if time.Since(entry.lastSeen) > 10*time.Minute {
				delete(ul.limiters, ip)
			}
		}
		ul.mu.Unlock()
	}
}

// getClientIP extracts the client IP, preferring proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// RateLimitHandlerFunc wraps an http.HandlerFunc with per-IP rate limiting.
// Returns 429 Too Many Requests when the limit is exceeded.
func RateLimitHandlerFunc(ul *UploadLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		limiter := ul.getLimiter(ip)
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}
		next(w, r)
	}
}

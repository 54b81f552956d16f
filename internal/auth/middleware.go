package auth

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/evcraddock/property-sync/internal/apperr"
)

const (
	failureWindow  = time.Minute
	maxFailures    = 10
	retryAfterSecs = "60"
)

// failureLimiter tracks failed token attempts per client IP.
type failureLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newFailureLimiter() *failureLimiter {
	return &failureLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (fl *failureLimiter) get(ip string) *rate.Limiter {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	l, ok := fl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Every(failureWindow/maxFailures), maxFailures)
		fl.limiters[ip] = l
	}
	return l
}

// blocked reports whether ip has used up its failure allowance.
func (fl *failureLimiter) blocked(ip string) bool {
	return fl.get(ip).Tokens() < 1
}

// fail records a failed attempt from ip.
func (fl *failureLimiter) fail(ip string) {
	fl.get(ip).Allow()
}

// RequireAPIKey validates Bearer token auth for /api/ routes. Other
// routes pass through untouched.
// Returns 401 for missing or invalid tokens and 429 once an IP has failed
// too often within a minute.
func RequireAPIKey(v *Validator, next http.Handler) http.Handler {
	limiter := newFailureLimiter()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only intercept /api/ paths
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if limiter.blocked(ip) {
			w.Header().Set("Retry-After", retryAfterSecs)
			writeError(w, apperr.KindRateLimited, "too many requests", http.StatusTooManyRequests)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			limiter.fail(ip)
			writeError(w, apperr.KindUnauthorized, "authorization required", http.StatusUnauthorized)
			return
		}

		if !v.Validate(strings.TrimPrefix(header, "Bearer ")) {
			limiter.fail(ip)
			writeError(w, apperr.KindUnauthorized, "invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, kind apperr.Kind, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": string(kind)})
}

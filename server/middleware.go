package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AuthMiddleware rejects requests without a valid bearer token and puts the
// user and session into the request context.
func (a *AuthService) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractTokenFromRequest(r)
		if token == "" {
			slog.Debug("No token provided in request")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "Not authenticated"})
			return
		}

		user, session, err := a.authenticate(token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "Invalid token"})
				return
			}
			slog.Error("Failed to validate session", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Internal server error"})
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter allowing perSecond sustained
// requests with the given burst per key.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		limiters: make(map[string]*clientLimiter),
	}
}

// IsAllowed reports whether a request from key may proceed now.
func (rl *RateLimiter) IsAllowed(key string) bool {
	return rl.allowAt(key, time.Now())
}

func (rl *RateLimiter) allowAt(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Cleanup drops keys idle for longer than the idle TTL.
func (rl *RateLimiter) Cleanup() {
	rl.cleanupAt(time.Now())
}

func (rl *RateLimiter) cleanupAt(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.idleTTL {
			delete(rl.limiters, key)
		}
	}
}

// Middleware limits requests per client IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !rl.IsAllowed(ip) {
			slog.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Detail: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

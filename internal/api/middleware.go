// Package api implements the Quire REST API using chi.
package api

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/quire/internal/auth"
	"github.com/starford/quire/internal/ratelimit"
)

type ctxKey struct{}

// UsernameFrom returns the authenticated username stored by AuthMiddleware.
func UsernameFrom(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(ctxKey{}).(string)
	return u, ok
}

// AuthMiddleware returns middleware that validates a Bearer session token.
// A nil service disables authentication. A missing token yields 401, an
// invalid or expired one 403.
func AuthMiddleware(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if svc == nil {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("Authentication required"))
				return
			}
			username, err := svc.Verify(strings.TrimSpace(token))
			if err != nil {
				writeJSON(w, http.StatusForbidden, errorBody("Invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, username)))
		})
	}
}

// RateLimit returns middleware limiting requests per client IP. A nil
// limiter passes every request through.
func RateLimit(l *ratelimit.Limiter, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}
			res := l.Allow(clientIP(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
				writeJSON(w, http.StatusTooManyRequests, errorBody(message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the host part of RemoteAddr, which middleware.RealIP
// rewrites from proxy headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// contentSecurityPolicy allows the bundled web client and its font CDN.
const contentSecurityPolicy = "default-src 'self'; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"script-src 'self' 'unsafe-inline' 'unsafe-eval'; " +
	"img-src 'self' data: blob: https:; " +
	"connect-src 'self'"

// SecurityHeaders sets the browser hardening headers on every response.
func SecurityHeaders(r chi.Router) {
	r.Use(middleware.SetHeader("Content-Security-Policy", contentSecurityPolicy))
	r.Use(middleware.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(middleware.SetHeader("X-Frame-Options", "SAMEORIGIN"))
	r.Use(middleware.SetHeader("Referrer-Policy", "no-referrer"))
	r.Use(middleware.SetHeader("Cross-Origin-Opener-Policy", "same-origin"))
}

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type contextKey struct{}

// KeyFromContext returns the authenticated API key stored by Middleware.
func KeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(contextKey{}).(string)
	return key
}

// Middleware authenticates requests via the X-API-Key header and then runs
// the per-key rate limit admission check. Authenticated handlers can read
// the key back with KeyFromContext.
func Middleware(ks *KeyStore, limiter *SlidingWindowLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderAPIKey)
			if !ks.IsValid(key) {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or missing API key")
				return
			}

			decision := limiter.Admit(key, time.Now())
			if !decision.Allowed {
				logger.Warn("rate limit exceeded",
					slog.String("key_suffix", keySuffix(key)),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
				writeAuthError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// keySuffix returns the last four characters of a key for log lines, never
// the full credential.
func keySuffix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return "…" + key[len(key)-4:]
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": message})
}

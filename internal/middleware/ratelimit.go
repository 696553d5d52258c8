package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per tenant, falling back to the client IP for
// unauthenticated callers.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return limitBy(requestLimit, windowLength, "tenant:", GetTenantID)
}

// UserRateLimit limits requests per end user, keyed on the JWT subject.
func UserRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return limitBy(requestLimit, windowLength, "user:", GetUserID)
}

func limitBy(n int, window time.Duration, prefix string, principal func(context.Context) string) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return httprate.Limit(
		n,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if id := principal(r.Context()); id != "" {
				return prefix + id, nil
			}
			return "ip:" + r.RemoteAddr, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		}),
	)
}

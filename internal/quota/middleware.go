package quota

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/Shubham6444/host/internal/metrics"
)

// UserIDFromContext extracts the user ID from the request context. It keeps
// this package independent of auth.
type UserIDFromContext func(ctx context.Context) (userID int64, ok bool)

// RateLimitMiddleware returns middleware that enforces rpm requests per
// minute per user. Requests without a user pass through.
func RateLimitMiddleware(limiter *RateLimiter, rpm int, getUser UserIDFromContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := getUser(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			allowed, wait := limiter.Allow(userID, rpm)
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordRateLimitHit()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "rate limit exceeded",
			})
		})
	}
}

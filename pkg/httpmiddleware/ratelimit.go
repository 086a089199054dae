package httpmiddleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avetra/ordergate/pkg/httpx"
	"github.com/avetra/ordergate/pkg/ratelimit"
)

// RateLimit returns a middleware that runs every request through the limiter,
// keyed by client IP. It runs before authentication so it also shields the
// token verifier from credential-stuffing volume.
//
// Every response carries the RateLimit-Limit, RateLimit-Remaining and
// RateLimit-Reset headers. A rejected request gets 429, a Retry-After header
// and a rate_limited error envelope.
//
// If the limiter itself fails, the request is admitted: availability wins
// over admission control for infrastructure faults.
func RateLimit(limiter ratelimit.Limiter, keyFunc func(*http.Request) string) Middleware {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				zctx.From(r.Context()).Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			// Seconds come from the limiter's ResetAfter, not the wall
			// clock, so the headers agree with the decision.
			reset := resetSeconds(d.ResetAfter)
			w.Header().Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(reset))

			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(reset))
				httpx.WriteError(w, http.StatusTooManyRequests,
					httpx.CodeRateLimited, "too many requests, slow down")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func resetSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 0 {
		return 0
	}
	return s
}

// ClientIP extracts the client address from the request, checking
// X-Forwarded-For first, then X-Real-IP, then falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For may contain a comma-separated list; use the first.
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

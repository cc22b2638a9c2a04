package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/safiri-labs/safiri-payments/internal/handler"
	"github.com/safiri-labs/safiri-payments/internal/logging"
	"github.com/safiri-labs/safiri-payments/internal/monitoring"
	"github.com/safiri-labs/safiri-payments/internal/ratelimit"
)

// KeyedLimiter pairs a limiter with a key extractor. Scope names the limiter
// in metrics and in the counter keyspace so two limiters on one route never
// share counters.
type KeyedLimiter struct {
	Limiter *ratelimit.Limiter
	Key     func(r *http.Request) string
	Scope   string
}

// RateLimit checks each limiter in order and rejects with the first blocked
// decision. Store failures allow the request through; losing rate limiting is
// preferable to dropping provider callbacks.
func RateLimit(limiters ...KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, kl := range limiters {
				key := kl.Scope + ":" + kl.Key(r)
				decision, err := kl.Limiter.Check(r.Context(), key)
				if err != nil {
					logging.FromContext(r.Context()).Error("rate limit check failed, allowing request", "scope", kl.Scope, "error", err)
					continue
				}

				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

				if !decision.Allowed {
					monitoring.RateLimitRejected(kl.Scope)
					w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
					handler.RespondAppError(w, handler.ErrRateLimited, nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys a limiter by caller address, trusting the first entry of
// X-Forwarded-For when a proxy sits in front.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip, _, found := strings.Cut(fwd, ","); found || ip != "" {
			return strings.TrimSpace(ip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GlobalKey keys a limiter by route alone, capping total throughput.
func GlobalKey(r *http.Request) string {
	return r.URL.Path
}

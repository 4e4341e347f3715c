package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/logctx"
)

// Allower is the counter behind RateLimit; *rate.Limiter satisfies it.
type Allower interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitOptions tunes RateLimit.
type RateLimitOptions struct {
	// FailOpen lets requests through when the counter store is unreachable.
	FailOpen bool
	Metrics  *edge.Metrics
}

var rateLimitUnavailable = edge.Failure{
	Code:    "RATE_LIMIT_UNAVAILABLE",
	Message: "Rate limiting is temporarily unavailable.",
	Status:  http.StatusServiceUnavailable,
}

// RateLimit throttles callers before authentication. The key is the client
// address, taken from the context when Logging already resolved it. Because
// RateLimit runs ahead of Authenticate, the identity subject is used instead
// only when an outer layer attached an identity to the request.
func RateLimit(limiter Allower, opts RateLimitOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := edge.ClientIPFromContext(ctx)
			if ip == "" {
				ip = ClientIP(r)
				ctx = edge.WithClientIP(ctx, ip)
				r = r.WithContext(ctx)
			}

			key := ip
			if id, ok := edge.IdentityFromContext(ctx); ok && id.Subject != "" {
				key = id.Subject
			}

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				opts.Metrics.Inc(edge.MetricRateLimitUnavailable)
				logctx.From(ctx).Error("rate limit store unavailable", "error", err, "fail_open", opts.FailOpen)
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteFailure(w, rateLimitUnavailable)
				return
			}
			if !allowed {
				opts.Metrics.Inc(edge.MetricRateLimitHit)
				logctx.From(ctx).Warn("rate limit exceeded", "client_ip", ip)
				WriteError(w, edge.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, else the host of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

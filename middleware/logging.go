package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/logctx"
)

// Logging stores a request-scoped logger in the context and writes one "http"
// record per request. Tokens and headers are never logged.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			reqLogger := l
			if rid := RequestIDFromContext(r.Context()); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			ctx := edge.WithClientIP(r.Context(), ip)
			r = r.WithContext(logctx.Into(ctx, reqLogger))

			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelInfo, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("client_ip", ip),
				slog.Int("status", sw.status),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", sw.count),
			)
		})
	}
}

package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/zipbob/edge/internal/logctx"
)

// Recover converts panics into a 500 without leaking details to the client.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logctx.From(r.Context()).
						LogAttrs(r.Context(), slog.LevelError, "panic",
							slog.String("path", r.URL.Path),
							slog.Any("reason", rec),
						)
					WriteError(w, errors.New("internal"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

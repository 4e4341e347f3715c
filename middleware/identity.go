package middleware

import (
	"net/http"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/logctx"
)

// PropagateIdentity exposes the authenticated member id to downstream handlers
// as header. It never rejects: requests without an identity, and paths in
// skip, pass through unchanged.
func PropagateIdentity(header string, skip PathSet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip.Match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			id, ok := edge.IdentityFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			// Clone so the caller's request and header map stay untouched.
			out := r.Clone(r.Context())
			out.Header.Set(header, id.MemberIDString())
			logctx.From(r.Context()).Debug("identity header set", "header", header)
			next.ServeHTTP(w, out)
		})
	}
}

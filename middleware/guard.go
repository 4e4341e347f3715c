package middleware

import (
	"net/http"

	"github.com/zipbob/edge"
)

var (
	unauthenticated = edge.Failure{
		Code:    "UNAUTHORIZED",
		Message: "Authentication is required.",
		Status:  http.StatusUnauthorized,
	}
	forbidden = edge.Failure{
		Code:    "FORBIDDEN",
		Message: "Access is denied.",
		Status:  http.StatusForbidden,
	}
)

// RequireRole admits only authenticated callers holding one of roles. With no
// roles it only requires authentication.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := edge.IdentityFromContext(r.Context())
			if !ok {
				WriteFailure(w, unauthenticated)
				return
			}
			if len(roles) > 0 && !id.HasRole(roles...) {
				WriteFailure(w, forbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

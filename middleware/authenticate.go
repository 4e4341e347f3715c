package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/logctx"
)

// Authenticator validates bearer access tokens; *edge.Engine satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (edge.Identity, error)
}

var authInternalFailure = edge.Failure{
	Code:    "INTERNAL_SERVER_ERROR",
	Message: "An unexpected error occurred.",
	Status:  http.StatusUnauthorized,
}

// Authenticate attaches the caller identity for requests carrying a valid
// bearer token. Requests without a token continue unauthenticated; a
// supplied-but-rejected token ends the request with 401. Paths in public are
// not inspected at all.
func Authenticate(auth Authenticator, public PathSet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logctx.From(r.Context()).Info("authentication rejected", "path", r.URL.Path, "error", err)
				if edge.IsTokenError(err) {
					f := edge.Describe(err)
					f.Status = http.StatusUnauthorized
					WriteFailure(w, f)
					return
				}
				WriteFailure(w, authInternalFailure)
				return
			}

			ctx := edge.WithIdentity(r.Context(), id)
			ctx = logctx.Into(ctx, logctx.From(ctx).With("member_id", id.MemberID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	return bearerToken(value)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

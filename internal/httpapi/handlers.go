package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/logctx"
	"github.com/zipbob/edge/internal/members"
	"github.com/zipbob/edge/middleware"
)

// Sessions is the session lifecycle surface; *edge.Engine satisfies it.
type Sessions interface {
	middleware.Authenticator
	IssueSession(ctx context.Context, id edge.Identity) (edge.TokenPair, error)
	Reissue(ctx context.Context, refreshToken string) (edge.TokenPair, error)
	Logout(ctx context.Context, refreshToken, accessToken string) error
	Ping(ctx context.Context) error
}

// Members is the member surface; *members.Service satisfies it.
type Members interface {
	GetMyInfo(ctx context.Context, email string) (members.Info, error)
	CheckNickname(ctx context.Context, nickname string) (bool, error)
	Update(ctx context.Context, email, newNickname string) (members.UpdateResult, error)
	OAuth2Join(ctx context.Context, email, nickname string) (members.JoinResult, error)
	Withdraw(ctx context.Context, email, nickname string) (members.WithdrawResult, error)
	TestJoin(ctx context.Context, email string) (*members.Member, error)
}

// Handlers holds handler dependencies.
type Handlers struct {
	sessions Sessions
	members  Members
	auth     edge.AuthConfig
	jwt      edge.JWTConfig
	checks   []HealthCheck
}

type message struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// callerEmail returns the authenticated subject. RequireRole guarantees it is
// present on every route that calls this.
func callerEmail(r *http.Request) string {
	id, _ := edge.IdentityFromContext(r.Context())
	return id.Subject
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	f := edge.Describe(err)
	if f.Status >= http.StatusInternalServerError {
		logger(r).Error("request failed", "error", err)
	}
	middleware.WriteFailure(w, f)
}

func logger(r *http.Request) *slog.Logger {
	return logctx.From(r.Context())
}

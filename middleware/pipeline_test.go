package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/rate"
)

type staticMembers map[string]edge.Identity

func (m staticMembers) LookupIdentity(_ context.Context, subject string) (edge.Identity, error) {
	id, ok := m[subject]
	if !ok {
		return edge.Identity{}, edge.ErrMemberNotFound
	}
	return id, nil
}

type pipeline struct {
	engine  *edge.Engine
	handler http.Handler
	mr      *miniredis.Miniredis
	header  *string
}

func newPipeline(t *testing.T, limit int) *pipeline {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := edge.DefaultConfig()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"

	engine, err := edge.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMembers(staticMembers{member42.Subject: member42}).
		Build()
	require.NoError(t, err)

	var header string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(cfg.Auth.IdentityHeader)
		w.WriteHeader(http.StatusOK)
	})

	h := Chain(inner,
		Recover(),
		RequestID(),
		Logging(nil),
		RateLimit(rate.New(rdb, rate.Config{Limit: limit, Window: time.Second}), RateLimitOptions{Metrics: engine.Metrics()}),
		Authenticate(engine, NewPathSet(cfg.Auth.PublicPaths...)),
		PropagateIdentity(cfg.Auth.IdentityHeader, NewPathSet(cfg.Auth.PropagationSkips...)),
	)

	return &pipeline{engine: engine, handler: h, mr: mr, header: &header}
}

func (p *pipeline) do(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	return rec
}

func TestPipelinePropagatesMemberID(t *testing.T) {
	p := newPipeline(t, 100)

	pair, err := p.engine.IssueSession(context.Background(), member42)
	require.NoError(t, err)

	rec := p.do("/members/myInfo", pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "42", *p.header)
}

func TestPipelineRejectsLoggedOutToken(t *testing.T) {
	p := newPipeline(t, 100)
	ctx := context.Background()

	pair, err := p.engine.IssueSession(ctx, member42)
	require.NoError(t, err)
	require.NoError(t, p.engine.Logout(ctx, pair.RefreshToken, pair.AccessToken))

	rec := p.do("/members/myInfo", pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "T001", decodeFailure(t, rec)["errorCode"])
}

func TestPipelineRateLimitsBeforeAuthentication(t *testing.T) {
	p := newPipeline(t, 2)

	require.Equal(t, http.StatusOK, p.do("/members/myInfo", "").Code)
	require.Equal(t, http.StatusOK, p.do("/members/myInfo", "").Code)

	rec := p.do("/members/myInfo", "garbage")
	require.Equal(t, http.StatusTooManyRequests, rec.Code, "limiter runs before the token is inspected")

	p.mr.FastForward(1100 * time.Millisecond)
	require.Equal(t, http.StatusOK, p.do("/members/myInfo", "").Code)
}

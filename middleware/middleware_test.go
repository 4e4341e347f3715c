package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zipbob/edge"
)

type fakeAuth struct {
	id    edge.Identity
	err   error
	calls atomic.Int32
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (edge.Identity, error) {
	f.calls.Add(1)
	if token == "bad" {
		return edge.Identity{}, edge.ErrTokenInvalid
	}
	return f.id, f.err
}

type fakeAllower struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeAllower) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

type captured struct {
	identity edge.Identity
	hasID    bool
	header   string
	called   bool
}

func captureHandler(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.identity, c.hasID = edge.IdentityFromContext(r.Context())
		c.header = r.Header.Get("X-Member-Id")
		w.WriteHeader(http.StatusNoContent)
	})
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

var member42 = edge.Identity{Subject: "a@x.com", MemberID: 42, Role: edge.RoleUser}

func TestAuthenticateWithoutTokenContinuesUnauthenticated(t *testing.T) {
	auth := &fakeAuth{id: member42}
	var c captured
	h := Authenticate(auth, NewPathSet())(captureHandler(&c))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members/myInfo", nil))

	require.True(t, c.called)
	require.False(t, c.hasID)
	require.Zero(t, auth.calls.Load())
}

func TestAuthenticateAttachesIdentity(t *testing.T) {
	auth := &fakeAuth{id: member42}
	var c captured
	h := Authenticate(auth, NewPathSet())(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/members/myInfo", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, c.hasID)
	require.Equal(t, member42, c.identity)
}

func TestAuthenticateRejectsInvalidTokenWith401(t *testing.T) {
	cases := map[string]error{
		"invalid":     edge.ErrTokenInvalid,
		"revoked":     edge.ErrTokenRevoked,
		"expired":     edge.ErrTokenExpired,
		"unsupported": edge.ErrTokenUnsupported,
	}
	for name, err := range cases {
		t.Run(name, func(t *testing.T) {
			var c captured
			h := Authenticate(&fakeAuth{err: err}, NewPathSet())(captureHandler(&c))

			req := httptest.NewRequest(http.MethodGet, "/members/myInfo", nil)
			req.Header.Set("Authorization", "Bearer whatever")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.False(t, c.called, "chain must stop")
			body := decodeFailure(t, rec)
			require.Equal(t, edge.Describe(err).Code, body["errorCode"])
			require.NotEmpty(t, body["errorMessage"])
		})
	}
}

func TestAuthenticateStoreFailureIs401Internal(t *testing.T) {
	var c captured
	h := Authenticate(&fakeAuth{err: edge.ErrStoreUnavailable}, NewPathSet())(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INTERNAL_SERVER_ERROR", decodeFailure(t, rec)["errorCode"])
	require.False(t, c.called)
}

func TestAuthenticateSkipsPublicPaths(t *testing.T) {
	auth := &fakeAuth{}
	var c captured
	h := Authenticate(auth, NewPathSet("/auth/reissue", "/members/nickname-check"))(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/members/nickname-check/bob", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, auth.calls.Load())
}

func TestPropagateIdentitySetsHeaderOnClone(t *testing.T) {
	var c captured
	h := PropagateIdentity("X-Member-Id", NewPathSet("/"))(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/members/myInfo", nil)
	req = req.WithContext(edge.WithIdentity(req.Context(), member42))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "42", c.header)
	require.Empty(t, req.Header.Get("X-Member-Id"), "original request must not be mutated")
}

func TestPropagateIdentityPassesThrough(t *testing.T) {
	var c captured
	h := PropagateIdentity("X-Member-Id", NewPathSet("/", "/members/test/join"))(captureHandler(&c))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members/myInfo", nil))
	require.True(t, c.called)
	require.Empty(t, c.header)

	c = captured{}
	req := httptest.NewRequest(http.MethodPost, "/members/test/join", nil)
	req = req.WithContext(edge.WithIdentity(req.Context(), member42))
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, c.called)
	require.Empty(t, c.header, "skipped path must not receive the header")
}

func TestRateLimitRejectsWithFixedBody(t *testing.T) {
	limiter := &fakeAllower{allow: false}
	var c captured
	h := RateLimit(limiter, RateLimitOptions{})(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.JSONEq(t, `{"errorCode":"RATE_LIMITED","errorMessage":"Too many requests. Please try again later."}`, rec.Body.String())
	require.False(t, c.called)
	require.Equal(t, []string{"10.1.2.3"}, limiter.keys)
}

func TestRateLimitKeyPrefersForwardedFor(t *testing.T) {
	limiter := &fakeAllower{allow: true}
	h := RateLimit(limiter, RateLimitOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "203.0.113.9", edge.ClientIPFromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, []string{"203.0.113.9"}, limiter.keys)
}

func TestRateLimitKeyUsesIdentityAttachedByOuterLayer(t *testing.T) {
	limiter := &fakeAllower{allow: true}
	h := RateLimit(limiter, RateLimitOptions{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(edge.WithIdentity(req.Context(), member42))
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, []string{"a@x.com"}, limiter.keys)
}

func TestLoggingRecordsClientIPUsedByRateLimit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	limiter := &fakeAllower{allow: true}

	h := Logging(logger)(RateLimit(limiter, RateLimitOptions{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})))

	req := httptest.NewRequest(http.MethodGet, "/members/myInfo", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, []string{"198.51.100.7"}, limiter.keys)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "http", record["msg"])
	require.Equal(t, "198.51.100.7", record["client_ip"])
}

func TestRateLimitStoreFailure(t *testing.T) {
	limiter := &fakeAllower{err: errors.New("redis down")}

	var c captured
	rec := httptest.NewRecorder()
	RateLimit(limiter, RateLimitOptions{})(captureHandler(&c)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, c.called)

	c = captured{}
	rec = httptest.NewRecorder()
	RateLimit(limiter, RateLimitOptions{FailOpen: true})(captureHandler(&c)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, c.called)
}

func TestRequireRole(t *testing.T) {
	var c captured
	h := RequireRole(edge.RoleUser, edge.RoleAdmin)(captureHandler(&c))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	guest := edge.Identity{Subject: "g@x.com", MemberID: 1, Role: edge.RoleGuest}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(edge.WithIdentity(req.Context(), guest)))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(edge.WithIdentity(req.Context(), member42)))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPathSetMatching(t *testing.T) {
	s := NewPathSet("/auth/reissue", "/members/nickname-check/", "/")

	require.True(t, s.Match("/"))
	require.True(t, s.Match("/auth/reissue"))
	require.True(t, s.Match("/members/nickname-check/bob"))
	require.False(t, s.Match("/auth/reissued"))
	require.False(t, s.Match("/members/myInfo"))

	require.False(t, NewPathSet("/auth").Match("/"))
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	require.True(t, ok)
	require.Equal(t, "abc", tok)

	tok, ok = BearerToken("bearer abc")
	require.True(t, ok)
	require.Equal(t, "abc", tok)

	for _, v := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, ok := BearerToken(v)
		require.False(t, ok, v)
	}
}

func TestRecoverWritesInternalError(t *testing.T) {
	h := Recover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "INTERNAL_SERVER_ERROR", decodeFailure(t, rec)["errorCode"])
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "given", seen)
}

func TestTimeoutKeepsEarlierDeadline(t *testing.T) {
	var got time.Duration
	h := Timeout(time.Minute)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		require.True(t, ok)
		got = time.Until(deadline)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Greater(t, got, 50*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	require.LessOrEqual(t, got, time.Second)
}

package edge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zipbob/edge/internal/logctx"
	"github.com/zipbob/edge/jwt"
	"github.com/zipbob/edge/revocation"
)

// ErrTokenRevoked is returned by Authenticate for logged-out access tokens. It
// matches ErrTokenInvalid under errors.Is.
var ErrTokenRevoked = fmt.Errorf("%w: access token revoked", ErrTokenInvalid)

// Engine orchestrates session issuance, reissue, logout and per-request
// authentication.
type Engine struct {
	config  Config
	tokens  *jwt.Manager
	store   *revocation.Store
	members MemberLookup
	metrics *Metrics
	now     func() time.Time
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.tokens == nil || e.store == nil {
		return ErrEngineNotReady
	}
	return nil
}

// IssueSession mints a token pair for id and makes its refresh token the
// subject's only active one, evicting any previous session.
func (e *Engine) IssueSession(ctx context.Context, id Identity) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	if strings.TrimSpace(id.Subject) == "" || id.MemberID == 0 || id.Role == "" {
		return TokenPair{}, errors.New("identity requires subject, member id and role")
	}

	pair, err := e.tokens.Issue(id.Subject, id.MemberID, id.Role)
	if err != nil {
		return TokenPair{}, err
	}

	if err := e.store.SaveRefresh(ctx, id.Subject, pair.Refresh, e.tokens.RefreshTTL()); err != nil {
		return TokenPair{}, storeError(err)
	}

	e.metricInc(MetricSessionIssued)
	logctx.From(ctx).Info("session issued", "member_id", id.MemberID, "role", id.Role)

	return toTokenPair(pair), nil
}

// Reissue exchanges the subject's active refresh token for a new pair. The
// presented token must be byte-equal to the stored one; it is superseded by
// the returned refresh token atomically, so a second call with the same token
// fails with ErrTokenInvalid.
func (e *Engine) Reissue(ctx context.Context, refreshToken string) (TokenPair, error) {
	pair, err := e.reissue(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricReissueFailure)
		logctx.From(ctx).Warn("reissue rejected", "error", err)
		return TokenPair{}, err
	}
	e.metricInc(MetricReissueSuccess)
	return pair, nil
}

func (e *Engine) reissue(ctx context.Context, refreshToken string) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, ErrMissingRefreshHeader
	}

	claims, err := e.tokens.ParseIgnoringExpiry(refreshToken)
	if err != nil {
		return TokenPair{}, tokenError(err)
	}
	subject := claims.Subject

	stored, err := e.store.ActiveRefresh(ctx, subject)
	if err != nil {
		return TokenPair{}, storeError(err)
	}
	if !revocation.Exists(stored) || stored != refreshToken {
		return TokenPair{}, ErrTokenInvalid
	}

	if e.members == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	id, err := e.members.LookupIdentity(ctx, subject)
	if err != nil {
		return TokenPair{}, err
	}

	pair, err := e.tokens.Issue(subject, id.MemberID, id.Role)
	if err != nil {
		return TokenPair{}, err
	}

	rotated, err := e.store.RotateRefresh(ctx, subject, refreshToken, pair.Refresh, e.tokens.RefreshTTL())
	if err != nil {
		return TokenPair{}, storeError(err)
	}
	if !rotated {
		// A concurrent reissue or logout won.
		return TokenPair{}, ErrTokenInvalid
	}

	return toTokenPair(pair), nil
}

// Logout revokes the session owning refreshToken and blacklists accessToken for
// the full configured access lifetime plus the parser leeway, so the entry
// outlives every instant the token could still verify. It fails with ErrTokenInvalid when the
// subject has no active session, so a repeated logout is an error.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if err := e.logout(ctx, refreshToken, accessToken); err != nil {
		e.metricInc(MetricLogoutFailure)
		logctx.From(ctx).Warn("logout rejected", "error", err)
		return err
	}
	e.metricInc(MetricLogoutSuccess)
	return nil
}

func (e *Engine) logout(ctx context.Context, refreshToken, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(refreshToken) == "" {
		return ErrMissingRefreshHeader
	}
	if strings.TrimSpace(accessToken) == "" {
		return ErrTokenInvalid
	}

	refreshClaims, err := e.tokens.ParseIgnoringExpiry(refreshToken)
	if err != nil {
		return tokenError(err)
	}
	accessClaims, err := e.tokens.ParseIgnoringExpiry(accessToken)
	if err != nil {
		return tokenError(err)
	}
	if accessClaims.Subject != refreshClaims.Subject {
		return ErrTokenInvalid
	}

	ttl := e.tokens.AccessTTL() + e.tokens.Leeway()
	revoked, err := e.store.RevokeSession(ctx, refreshClaims.Subject, accessToken, ttl)
	if err != nil {
		return storeError(err)
	}
	if !revoked {
		return ErrTokenInvalid
	}

	logctx.From(ctx).Info("session revoked", "member_id", accessClaims.MemberID)
	return nil
}

// Authenticate validates a bearer access token: blacklist first, then
// signature and expiry.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}

	start := e.now()
	id, err := e.authenticate(ctx, accessToken)
	if e.metrics != nil {
		e.metrics.ObserveAuthenticate(e.now().Sub(start))
	}

	switch {
	case err == nil:
		e.metricInc(MetricAuthSuccess)
	case errors.Is(err, ErrTokenRevoked):
		e.metricInc(MetricAuthBlacklisted)
	case errors.Is(err, ErrTokenExpired):
		e.metricInc(MetricAuthExpired)
	case IsTokenError(err):
		e.metricInc(MetricAuthInvalid)
	}
	return id, err
}

func (e *Engine) authenticate(ctx context.Context, accessToken string) (Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Identity{}, ErrTokenInvalid
	}

	blacklisted, err := e.store.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return Identity{}, storeError(err)
	}
	if blacklisted {
		return Identity{}, ErrTokenRevoked
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return Identity{}, tokenError(err)
	}

	return Identity{
		Subject:  claims.Subject,
		MemberID: claims.MemberID,
		Role:     claims.Role,
	}, nil
}

// Ping checks the revocation store.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.store.Ping(ctx); err != nil {
		return storeError(err)
	}
	return nil
}

func toTokenPair(p jwt.Pair) TokenPair {
	return TokenPair{
		AccessToken:      p.Access,
		RefreshToken:     p.Refresh,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

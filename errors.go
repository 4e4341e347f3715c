package edge

import (
	"errors"
	"net/http"

	"github.com/zipbob/edge/jwt"
	"github.com/zipbob/edge/revocation"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens, blacklisted access
	// tokens and refresh tokens that are not the subject's active one.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for correctly signed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenUnsupported is returned for tokens using an unaccepted algorithm.
	ErrTokenUnsupported = errors.New("token unsupported")
	// ErrMissingRefreshHeader is returned when /auth operations receive no refresh token.
	ErrMissingRefreshHeader = errors.New("refresh token header missing")

	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateNickname = errors.New("nickname already taken")
	ErrMemberNotFound    = errors.New("member not found")
	ErrWrongRole         = errors.New("wrong role")
	ErrNicknameMismatch  = errors.New("nickname does not match")
	// ErrInvalidRequest is returned for undecodable or out-of-range request input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimited is returned when a caller exhausted its request window.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps Redis/Postgres failures surfaced to callers.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// Failure is the client-facing shape of an error.
type Failure struct {
	Code    string `json:"errorCode"`
	Message string `json:"errorMessage"`
	Status  int    `json:"-"`
}

var failures = []struct {
	err     error
	failure Failure
}{
	{ErrTokenInvalid, Failure{"T001", "Invalid token.", http.StatusBadRequest}},
	{ErrTokenExpired, Failure{"T002", "Token has expired.", http.StatusBadRequest}},
	{ErrTokenUnsupported, Failure{"T003", "Unsupported token format.", http.StatusBadRequest}},
	{ErrMissingRefreshHeader, Failure{"T004", "Refresh token is missing from the request header.", http.StatusBadRequest}},
	{ErrDuplicateEmail, Failure{"M001", "Email is already registered.", http.StatusConflict}},
	{ErrDuplicateNickname, Failure{"M002", "Nickname is already taken.", http.StatusConflict}},
	{ErrMemberNotFound, Failure{"M003", "No matching member exists.", http.StatusNotFound}},
	{ErrWrongRole, Failure{"M004", "Wrong role for this operation.", http.StatusBadRequest}},
	{ErrNicknameMismatch, Failure{"M005", "Nickname does not match the current nickname.", http.StatusBadRequest}},
	{ErrInvalidRequest, Failure{"INVALID_REQUEST", "The request is invalid.", http.StatusBadRequest}},
	{ErrRateLimited, Failure{"RATE_LIMITED", "Too many requests. Please try again later.", http.StatusTooManyRequests}},
	{ErrStoreUnavailable, Failure{"SERVICE_UNAVAILABLE", "A backing store is unavailable.", http.StatusServiceUnavailable}},
}

// Describe maps err onto its client-facing Failure. Unknown errors become a
// generic 500 without leaking details.
func Describe(err error) Failure {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return f.failure
		}
	}
	return Failure{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "An unexpected error occurred.",
		Status:  http.StatusInternalServerError,
	}
}

// IsTokenError reports whether err is one of the token-class errors.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenUnsupported) ||
		errors.Is(err, ErrMissingRefreshHeader)
}

// tokenError converts codec errors into the edge taxonomy.
func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrUnsupported):
		return ErrTokenUnsupported
	default:
		return ErrTokenInvalid
	}
}

func storeError(err error) error {
	if errors.Is(err, revocation.ErrRedisUnavailable) {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return err
}

// Package jwt issues and verifies the signed access/refresh token pair used by the edge.
//
// Access tokens carry the subject, numeric member id and role. Refresh tokens carry only
// the subject and are used solely to mint new access tokens.
//
// # Verification modes
//
//   - [Manager.ParseAccess] — signature, expiry and required claims; used for authorization.
//   - [Manager.ParseRefresh] — signature and expiry of a refresh token.
//   - [Manager.ParseIgnoringExpiry] — signature only; used where the subject must be
//     recoverable from a token that may already be expired (logout, reissue).
//
// Failures are classified as [ErrExpired], [ErrMalformed] or [ErrUnsupported].
package jwt

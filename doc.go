// Package edge is the session core of the zipbob edge service.
//
// An [Engine] issues access/refresh token pairs, reissues access tokens from
// the subject's single active refresh token, revokes sessions on logout and
// authenticates bearer tokens for the HTTP filter chain.
//
// State lives in Redis only (see package revocation); the Engine itself is
// immutable after [Builder.Build] and safe for concurrent use.
package edge

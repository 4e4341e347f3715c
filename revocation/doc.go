// Package revocation provides the Redis-backed store that makes logout and token reissue
// consistent across a stateless fleet of edge instances.
//
// # Key namespaces
//
//   - <prefix>:rt:<subject> — the subject's single active refresh token, TTL = refresh lifetime.
//   - <prefix>:bl:<sha256(access)> — blacklisted access token marker, TTL = access lifetime.
//
// TTL is the only eviction mechanism; there is no cleanup job.
//
// # Atomicity
//
// Every mutation is one Redis command or one Lua script, so concurrent callers for the
// same subject never observe a read-then-write gap. Compare-and-swap rotation and
// logout revocation run as scripts.
//
// # What this package must NOT do
//
//   - Parse or verify tokens (the caller hands in opaque strings).
//   - Decide HTTP responses.
package revocation

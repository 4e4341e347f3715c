// Package rate implements the Redis-backed request throttle used in front of
// authentication.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. A counter is
// never read without being incremented. Keys are "<prefix>:<caller key>"; the
// caller key is chosen by the HTTP layer (identity subject or client address).
//
// # What this package must NOT do
//
//   - Decide fail-open versus fail-closed; it reports ErrRedisUnavailable and
//     lets the caller choose.
//   - Derive caller keys from requests.
package rate

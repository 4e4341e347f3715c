// Package middleware holds the net/http filter chain of the edge service.
//
// Order, outer to inner: Recover, RequestID, Logging, RateLimit, Authenticate,
// PropagateIdentity, then per-route RequireRole. Every rejection is written as
// a JSON {errorCode, errorMessage} body by WriteFailure.
package middleware

// Package routing selects the Postgres pool (primary or read replica) a data
// operation runs against.
//
// Each operation declares its capability explicitly with [Bind]; the binding
// travels in the context.Context of that call only, so concurrent requests
// never observe each other's decision. Unbound contexts go to the primary.
package routing

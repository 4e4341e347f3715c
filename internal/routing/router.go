package routing

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Capability tags a data operation as read-only or mutating.
type Capability int

const (
	// Unbound is the zero value: no capability declared.
	Unbound Capability = iota
	// Read operations may be served by the replica.
	Read
	// Write operations must reach the primary.
	Write
)

func (c Capability) String() string {
	switch c {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unbound"
	}
}

// DB is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type capabilityKey struct{}

// Bind returns a child context carrying c. A later Bind on the returned context
// overrides the earlier one for that subtree only.
func Bind(ctx context.Context, c Capability) context.Context {
	return context.WithValue(ctx, capabilityKey{}, c)
}

// CapabilityFromContext returns the capability bound to ctx, or Unbound.
func CapabilityFromContext(ctx context.Context) Capability {
	if ctx == nil {
		return Unbound
	}
	c, _ := ctx.Value(capabilityKey{}).(Capability)
	return c
}

// Router hands out the pool matching the capability bound to a context.
type Router struct {
	primary DB
	replica DB
}

// New creates a Router. A nil replica routes reads to the primary.
func New(primary, replica DB) *Router {
	if replica == nil {
		replica = primary
	}
	return &Router{primary: primary, replica: replica}
}

// DB returns the replica for Read contexts and the primary otherwise.
func (r *Router) DB(ctx context.Context) DB {
	if CapabilityFromContext(ctx) == Read {
		return r.replica
	}
	return r.primary
}

// Target names the pool DB(ctx) would return, for logs and metrics.
func (r *Router) Target(ctx context.Context) string {
	if CapabilityFromContext(ctx) == Read && r.replica != r.primary {
		return "replica"
	}
	return "primary"
}

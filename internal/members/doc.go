// Package members owns the member records behind the edge: the Postgres
// repository, the my-info cache and the operations exposed under /members.
//
// Every Service method binds a routing capability before touching the
// repository, so reads land on the replica and writes on the primary.
package members

/*
Package query implements the Query Engine: compiles query descriptions,
executes them against the Triple Store with an optional remote-cache
fast-path, expands declared relations, and keeps subscription handles
live by re-running affected queries after relevant store changes.

PURPOSE:
  An application never talks to the Triple Store directly for reads; it
  calls Engine.Query(desc) and gets back a Subscription it can Read() once
  or Watch() for successive values.

KEY CONCEPTS IN THIS FILE (types.go):
  - Description: the namespace-keyed query tree (where/order/limit/offset/
    include/aggregate/groupBy per namespace)
  - Result: namespace -> list of entity objects, with a status
  - Include: a nested relation sub-query

SEE ALSO:
  - compile.go: canonical cache key
  - include.go: relation expansion convention
  - invalidation.go: 200ms coalescing invalidator
  - engine.go: Engine itself, wiring compile/cache/fast-path/remote-subscribe
*/
package query

import "github.com/relaydb/relaydb-go/triplestore"

// Status is the lifecycle state of a Result.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// NamespaceQuery is one namespace node of a Description.
type NamespaceQuery struct {
	Where     triplestore.WhereClause
	OrderBy   triplestore.OrderSpec
	Limit     *int
	Offset    *int
	Aggregate []triplestore.AggregateSpec
	GroupBy   []string
	// Include maps a relation key (e.g. "author", "comments") to the
	// sub-query executed against the related namespace.
	Include map[string]NamespaceQuery
}

// Description is a query description: one NamespaceQuery per top-level
// namespace requested.
type Description map[string]NamespaceQuery

// Namespaces returns the top-level namespace keys of d, in no particular
// order.
func (d Description) Namespaces() []string {
	out := make([]string, 0, len(d))
	for ns := range d {
		out = append(out, ns)
	}
	return out
}

// Result is the value a Subscription publishes: namespace -> entity list,
// plus a lifecycle Status and, on StatusError, the failure.
type Result struct {
	Status Status
	Data   map[string][]triplestore.Entity
	Err    error
}

/*
store.go - Persistence interface for triples and transactions

PURPOSE:
  Defines the boundary between the Transaction/Query/Sync engines and the
  durable database. Store handles persistence; implementations may use
  SQLite (storage/sqlite) or an in-memory map (memory.go, for tests).

ATOMICITY CONTRACT:
  ApplyTransaction either reflects every operation's effects in the store,
  or none of them - never a partial result. On any error mid-transaction,
  all effects from that call are discarded and RollbackTransaction(tx_id)
  becomes a no-op for it.

DURABILITY:
  Pending transactions must survive a process restart so the Sync Engine
  can replay them in enqueue order on reconnect.

SEE ALSO:
  - storage/sqlite/sqlite.go: concrete SQLite implementation
  - memory.go: in-memory implementation for tests
  - where.go, order.go, aggregate.go: QueryEntities building blocks
*/
package triplestore

import "context"

// WhereClause is a pattern-query predicate tree ("where-clause semantics").
// Keys are either attribute names (whose
// value is compared, possibly via an operator map) or the logical
// combinators "$and"/"$or" (whose value is a []WhereClause).
type WhereClause map[string]Value

// OrderSpec is one of the accepted order forms: a string "field dir", an
// object {field: dir}, or (via QueryOptions.OrderBy being a []any) a list
// of either, applied right-to-left (last key least significant).
type OrderSpec = Value

// AggregateSpec describes a $aggregate reducer: Func is one of
// "count"|"sum"|"avg"|"min"|"max", Arg is "*" or an attribute name.
type AggregateSpec struct {
	Func string
	Arg  string
	// As names the output field; defaults to "Func_Arg" if empty.
	As string
}

// QueryOptions bundles the optional clauses query_entities accepts.
type QueryOptions struct {
	Where     WhereClause
	OrderBy   OrderSpec
	Limit     *int
	Offset    *int
	Aggregate []AggregateSpec
	GroupBy   []string
	// Strict makes an unknown where-clause operator an error instead of
	// silently degrading to "no constraint".
	Strict bool
}

// Store is the durable EAV database: triples plus the transaction log.
//
// INVARIANTS:
//   - ApplyTransaction is atomic: fully applied or fully absent.
//   - Every entity_id present has exactly one "__type" triple.
//   - Changes are delivered on the Changes stream in commit order.
type Store interface {
	// ApplyTransaction applies every operation in tx under one durable
	// write unit, then emits one TripleChange per triple effect. Returns
	// once durable. On error, no partial effect is left behind and no
	// change events are emitted for tx.
	ApplyTransaction(ctx context.Context, tx Transaction) error

	// RollbackTransaction is a best-effort safety net: if txID is recorded
	// as pending, it removes any triples whose TxProvenance equals txID
	// and drops the transaction record. It is a no-op for synced or failed
	// transactions and for txIDs that are not in the log.
	RollbackTransaction(ctx context.Context, txID string) error

	// MarkTransactionSynced transitions a pending transaction to synced in
	// the durable log, after which it may be pruned.
	MarkTransactionSynced(ctx context.Context, txID string) error

	// GetPendingTransactions returns pending transactions in enqueue
	// order, for replay when the Sync Engine (re)starts.
	GetPendingTransactions(ctx context.Context) ([]Transaction, error)

	// QueryEntities materializes entities of namespace as Entity maps
	// (always including "id"), applies Where, sorts, pages, and
	// optionally aggregates/groups.
	QueryEntities(ctx context.Context, namespace string, opts QueryOptions) ([]Entity, error)

	// GetEntityType returns the namespace recorded on entityID's "__type"
	// triple, or ("", false) if entityID is unknown.
	GetEntityType(ctx context.Context, entityID string) (string, bool)

	// ClearAll wipes all local state: triples and the transaction log.
	ClearAll(ctx context.Context) error

	// Changes returns an unbounded stream of TripleChange events,
	// delivered in commit order. Each call returns an independent
	// subscription; callers must keep draining it (a full buffer drops the
	// oldest events) and call unsubscribe to release it.
	Changes() (ch <-chan TripleChange, unsubscribe func())
}

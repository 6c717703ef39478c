/*
Package triplestore provides the core entity/attribute/value (EAV) engine.

PURPOSE:
  This package contains the domain-agnostic data model and algorithms for
  a local, reactive triple store. Whether the application models todos,
  documents, or a social graph, the same engine answers pattern queries,
  orders and pages results, and applies transactions atomically.

KEY CONCEPTS IN THIS FILE (types.go):
  - Triple: a single (entity_id, attribute_name, value) fact
  - Entity: the projection of all triples sharing an entity_id
  - AttributeDescriptor: server-assigned identity for a namespaced attribute
  - Operation: add / update / delete, expanded to triple effects at apply time
  - Transaction: an ordered batch of operations with a lifecycle status

DESIGN PRINCIPLES:
  1. Values are JSON scalars or small JSON structures, stored verbatim.
  2. Every entity carries exactly one reserved "__type" triple (its namespace).
  3. Transactions are atomic: fully applied or fully absent, never partial.

SEE ALSO:
  - store.go: Store interface and query semantics
  - where.go, order.go, aggregate.go: query_entities building blocks
*/
package triplestore

import "time"

// TypeAttribute is the reserved attribute name that records an entity's
// namespace (collection). Every entity has exactly one triple with this
// attribute.
const TypeAttribute = "__type"

// Value is a JSON scalar (string, number, bool, nil) or a small JSON
// structure (map[string]any, []any), stored verbatim.
type Value = any

// Triple is a single entity/attribute/value fact.
type Triple struct {
	EntityID      string
	AttributeName string
	Value         Value
	// TxProvenance is the tx_id that wrote this triple, used by
	// RollbackTransaction to find effects to undo before they are durably
	// committed.
	TxProvenance string
	CreatedAt    time.Time
}

// Entity is the projection of all triples sharing an entity_id, keyed by
// attribute name. It always includes "id" and "__type".
type Entity map[string]Value

// ChangeKind identifies the kind of effect a TripleChange represents.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// TripleChange is emitted on the Store's Changes stream once per triple
// effect, in commit order, after a transaction has been durably applied.
type TripleChange struct {
	Kind   ChangeKind
	Triple Triple
}

// AttributeDescriptor is the authoritative, server-assigned identity for a
// (namespace, attribute_name) pair, cached locally by the Attribute
// Registry.
type AttributeDescriptor struct {
	ID            string
	Namespace     string
	AttributeName string
}

// OperationKind identifies the shape of an Operation.
type OperationKind string

const (
	OpAdd    OperationKind = "add"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// Operation is one mutation within a Transaction. It is expanded to one or
// more triple-level effects when the owning Transaction is applied.
//
//   - Add:    writes every (EntityID, attr, value) pair in Data, including
//             a "__type" triple set to EntityType.
//   - Update: writes only the attributes present in Data; attributes it
//             omits are left untouched (never removed).
//   - Delete: removes every triple with EntityID as subject.
type Operation struct {
	Kind       OperationKind    `json:"kind"`
	EntityType string           `json:"entityType,omitempty"`
	EntityID   string           `json:"entityId"`
	Data       map[string]Value `json:"data,omitempty"`
}

// TxStatus is the lifecycle status of a Transaction.
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxSynced  TxStatus = "synced"
	TxFailed  TxStatus = "failed"
)

// Transaction is an ordered batch of operations applied atomically.
// Remote-originated transactions are constructed with Status already
// TxSynced; locally originated ones start TxPending and are transitioned
// by MarkTransactionSynced once the server acknowledges them.
type Transaction struct {
	ID         string
	Operations []Operation
	CreatedAt  time.Time
	Status     TxStatus
}

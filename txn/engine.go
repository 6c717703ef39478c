/*
Package txn implements the Transaction Engine: assigning a tx_id to an
ordered operation batch, applying it locally, and handing it to the Sync
Engine's outbound queue - with rollback on local failure.

PURPOSE:
  Transact(ops) is the single write entry point applications use. It is
  asynchronous in spirit (it returns before remote acknowledgement) but
  synchronous with respect to the local Triple Store: by the time it
  returns, the Triple Store already reflects the transaction (or none of
  it, on failure).

FAILURE MODEL:
  Any error from Store.ApplyTransaction triggers RollbackTransaction and
  is returned to the caller; the transaction is NOT handed to the sync
  enqueuer in that case. Network failures are never surfaced here - once
  a transaction is durably pending, its eventual sync is the Sync
  Engine's problem.

GROUNDED ON:
  generic/ledger.go's Append/AppendBatch shape (validate, persist,
  idempotency-aware) and factory/policy.go's validate-then-construct flow.
*/
package txn

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/relaydb/relaydb-go/triplestore"
)

// Enqueuer is the narrow interface the Sync Engine satisfies so txn never
// imports the sync package, mirroring the same inversion on the query
// side.
type Enqueuer interface {
	Enqueue(tx triplestore.Transaction)
}

// Result is returned by Transact.
type Result struct {
	TxID      string
	Status    triplestore.TxStatus
	CreatedAt time.Time
}

// Engine is the Transaction Engine.
type Engine struct {
	store    triplestore.Store
	enqueuer Enqueuer // nil when Config.SyncEnabled is false
}

// New creates a Transaction Engine over store. enqueuer may be nil, in
// which case transactions remain pending in the durable log forever, for
// callers running fully offline.
func New(store triplestore.Store, enqueuer Enqueuer) *Engine {
	return &Engine{store: store, enqueuer: enqueuer}
}

// Transact assigns a tx_id, applies ops locally, and - on success - hands
// the transaction to the Sync Engine's outbound queue. On local apply
// failure, it rolls back and returns the error without enqueuing.
func (e *Engine) Transact(ctx context.Context, ops []triplestore.Operation) (Result, error) {
	sanitized := make([]triplestore.Operation, len(ops))
	for i, op := range ops {
		sanitized[i] = sanitizeOperation(op)
	}

	tx := triplestore.Transaction{
		ID:         uuid.NewString(),
		Operations: sanitized,
		CreatedAt:  time.Now(),
		Status:     triplestore.TxPending,
	}

	if err := e.store.ApplyTransaction(ctx, tx); err != nil {
		_ = e.store.RollbackTransaction(ctx, tx.ID)
		return Result{}, err
	}

	if e.enqueuer != nil {
		e.enqueuer.Enqueue(tx)
	}

	return Result{TxID: tx.ID, Status: triplestore.TxPending, CreatedAt: tx.CreatedAt}, nil
}

// sanitizeOperation repairs corrupted entity ids on delete operations, a
// migration aid for data authored by earlier client versions. It must be
// preserved even though new code never produces such ids itself.
func sanitizeOperation(op triplestore.Operation) triplestore.Operation {
	if op.Kind != triplestore.OpDelete {
		return op
	}
	op.EntityID = SanitizeEntityID(op.EntityID)
	return op
}

var uuidV4Pattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}`)

// SanitizeEntityID repairs an entity id that may have been corrupted into
// a JSON-array-looking string by earlier client versions: first it tries
// to parse it as a JSON array and take the first element, then it falls
// back to extracting the first UUID-v4 substring. If neither applies, id
// is returned unchanged.
func SanitizeEntityID(id string) string {
	if len(id) >= 2 && id[0] == '[' && id[len(id)-1] == ']' {
		if first := firstJSONArrayElement(id); first != "" {
			return first
		}
	}
	if m := uuidV4Pattern.FindString(id); m != "" {
		return m
	}
	return id
}

func firstJSONArrayElement(s string) string {
	inner := s[1 : len(s)-1]
	depth := 0
	start := -1
	for i, r := range inner {
		switch r {
		case '"':
			if start == -1 {
				start = i + 1
			} else {
				return inner[start:i]
			}
		case '[', '{':
			depth++
		case ']', '}':
			depth--
		case ',':
			if depth == 0 && start != -1 {
				return trimQuotes(inner[:i])
			}
		}
	}
	if start != -1 {
		return inner[start:]
	}
	return trimQuotes(inner)
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

/*
memory.go - In-memory reference Store

PURPOSE:
  A Store implementation backed by plain Go maps, used by the package's
  own tests, by query/sync engine tests that don't want a SQLite
  dependency, and as the local store when an in-memory database is
  requested instead of a file-backed one.

CONCURRENCY:
  Guarded by a single sync.RWMutex, matching storage/sqlite's guard -
  ApplyTransaction is the one multi-writer path.
*/
package triplestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu           sync.RWMutex
	triples      map[string]map[string]Triple // entity_id -> attr -> triple
	transactions map[string]*Transaction
	txOrder      []string // enqueue order, for GetPendingTransactions
	broadcaster  Broadcaster
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		triples:      make(map[string]map[string]Triple),
		transactions: make(map[string]*Transaction),
	}
}

func (s *MemoryStore) ApplyTransaction(ctx context.Context, tx Transaction) error {
	s.mu.Lock()

	// Stage all effects first so a validation failure touches nothing.
	type effect struct {
		kind   ChangeKind
		triple Triple
	}
	var effects []effect
	deletes := make(map[string]bool)

	for _, op := range tx.Operations {
		switch op.Kind {
		case OpAdd:
			if op.EntityID == "" || op.EntityType == "" {
				s.mu.Unlock()
				return &InvalidOperationError{Kind: op.Kind, Reason: "missing entity id or type"}
			}
			for attr, val := range op.Data {
				if attr == TypeAttribute {
					continue
				}
				effects = append(effects, effect{ChangeAdd, Triple{EntityID: op.EntityID, AttributeName: attr, Value: val, TxProvenance: tx.ID, CreatedAt: time.Now()}})
			}
			effects = append(effects, effect{ChangeAdd, Triple{EntityID: op.EntityID, AttributeName: TypeAttribute, Value: op.EntityType, TxProvenance: tx.ID, CreatedAt: time.Now()}})
		case OpUpdate:
			if op.EntityID == "" {
				s.mu.Unlock()
				return &InvalidOperationError{Kind: op.Kind, Reason: "missing entity id"}
			}
			for attr, val := range op.Data {
				if attr == TypeAttribute {
					continue
				}
				effects = append(effects, effect{ChangeUpdate, Triple{EntityID: op.EntityID, AttributeName: attr, Value: val, TxProvenance: tx.ID, CreatedAt: time.Now()}})
			}
		case OpDelete:
			if op.EntityID == "" {
				s.mu.Unlock()
				return &InvalidOperationError{Kind: op.Kind, Reason: "missing entity id"}
			}
			deletes[op.EntityID] = true
		default:
			s.mu.Unlock()
			return &InvalidOperationError{Kind: op.Kind, Reason: "unknown operation kind"}
		}
	}

	// Commit.
	var committed []effect
	for entityID := range deletes {
		attrs, ok := s.triples[entityID]
		if !ok {
			continue
		}
		for _, tr := range attrs {
			committed = append(committed, effect{ChangeDelete, tr})
		}
		delete(s.triples, entityID)
	}
	for _, eff := range effects {
		attrs, ok := s.triples[eff.triple.EntityID]
		if !ok {
			attrs = make(map[string]Triple)
			s.triples[eff.triple.EntityID] = attrs
		}
		attrs[eff.triple.AttributeName] = eff.triple
		committed = append(committed, eff)
	}

	txCopy := tx
	if txCopy.ID == "" {
		txCopy.ID = uuid.NewString()
	}
	if txCopy.CreatedAt.IsZero() {
		txCopy.CreatedAt = time.Now()
	}
	if _, exists := s.transactions[txCopy.ID]; !exists {
		s.txOrder = append(s.txOrder, txCopy.ID)
	}
	s.transactions[txCopy.ID] = &txCopy

	s.mu.Unlock()

	for _, eff := range committed {
		s.broadcaster.Publish(TripleChange{Kind: eff.kind, Triple: eff.triple})
	}
	return nil
}

func (s *MemoryStore) RollbackTransaction(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok || tx.Status != TxPending {
		return nil
	}
	for entityID, attrs := range s.triples {
		for attr, tr := range attrs {
			if tr.TxProvenance == txID {
				delete(attrs, attr)
			}
		}
		if len(attrs) == 0 {
			delete(s.triples, entityID)
		}
	}
	delete(s.transactions, txID)
	s.removeFromOrder(txID)
	return nil
}

func (s *MemoryStore) removeFromOrder(txID string) {
	for i, id := range s.txOrder {
		if id == txID {
			s.txOrder = append(s.txOrder[:i], s.txOrder[i+1:]...)
			return
		}
	}
}

func (s *MemoryStore) MarkTransactionSynced(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.Status = TxSynced
	return nil
}

func (s *MemoryStore) GetPendingTransactions(ctx context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx != nil && tx.Status == TxPending {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryEntities(ctx context.Context, namespace string, opts QueryOptions) ([]Entity, error) {
	s.mu.RLock()
	entities := s.materialize(namespace)
	s.mu.RUnlock()
	return ExecuteQuery(entities, opts)
}

// materialize must be called with at least s.mu.RLock held.
func (s *MemoryStore) materialize(namespace string) []Entity {
	ids := make([]string, 0)
	for id, attrs := range s.triples {
		if t, ok := attrs[TypeAttribute]; ok {
			if ns, ok2 := t.Value.(string); ok2 && ns == namespace {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	entities := make([]Entity, 0, len(ids))
	for _, id := range ids {
		e := Entity{"id": id}
		for attr, tr := range s.triples[id] {
			e[attr] = tr.Value
		}
		entities = append(entities, e)
	}
	return entities
}

func (s *MemoryStore) GetEntityType(ctx context.Context, entityID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.triples[entityID]
	if !ok {
		return "", false
	}
	t, ok := attrs[TypeAttribute]
	if !ok {
		return "", false
	}
	ns, ok := t.Value.(string)
	return ns, ok
}

func (s *MemoryStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triples = make(map[string]map[string]Triple)
	s.transactions = make(map[string]*Transaction)
	s.txOrder = nil
	return nil
}

func (s *MemoryStore) Changes() (<-chan TripleChange, func()) {
	return s.broadcaster.Subscribe()
}

var _ Store = (*MemoryStore)(nil)

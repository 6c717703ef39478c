/*
Package sqlite provides a SQLite-backed implementation of triplestore.Store.

PURPOSE:
  Implements the durable EAV store: two tables, triples and transactions,
  opened in WAL mode so multiple readers never block a single writer and
  crash recovery stays simple.

APPEND/ATOMICITY:
  ApplyTransaction stages every operation's effects inside one sql.Tx: a
  failure partway through rolls the whole batch back automatically via
  sqlTx.Rollback(), so no partial transaction state is ever observable
  after apply returns.

KEY TABLES:
  triples:      one row per (entity_id, attribute_name), last-write-wins
  transactions: the durable pending/synced/failed log, replayed on restart

CONCURRENCY:
  Guarded by a sync.RWMutex. In production with a server-grade engine,
  database-level concurrency control would replace this; SQLite's own
  locking is not sufficient for the atomic multi-row + change-broadcast
  sequencing this store performs.

SEE ALSO:
  - triplestore/store.go: interface this type implements
  - triplestore/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relaydb/relaydb-go/triplestore"
)

// Store implements triplestore.Store using SQLite.
type Store struct {
	db          *sql.DB
	mu          sync.RWMutex
	broadcaster triplestore.Broadcaster
}

// New creates a new SQLite-backed Store at dbPath. Use ":memory:" for an
// in-memory database (handy for tests that still want to exercise the SQL
// path).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS triples (
		entity_id TEXT NOT NULL,
		attribute_name TEXT NOT NULL,
		value_json TEXT NOT NULL,
		tx_provenance TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (entity_id, attribute_name)
	);

	CREATE INDEX IF NOT EXISTS idx_triples_entity
		ON triples(entity_id);
	CREATE INDEX IF NOT EXISTS idx_triples_attribute
		ON triples(attribute_name);
	CREATE INDEX IF NOT EXISTS idx_triples_provenance
		ON triples(tx_provenance) WHERE tx_provenance IS NOT NULL;

	CREATE TABLE IF NOT EXISTS transactions (
		tx_id TEXT PRIMARY KEY,
		operations_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		status TEXT NOT NULL,
		seq INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_status
		ON transactions(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ApplyTransaction implements triplestore.Store.
func (s *Store) ApplyTransaction(ctx context.Context, tx triplestore.Transaction) error {
	s.mu.Lock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC()
	var committed []triplestore.TripleChange
	deletedEntities := make(map[string]bool)

	for _, op := range tx.Operations {
		switch op.Kind {
		case triplestore.OpAdd:
			if op.EntityID == "" || op.EntityType == "" {
				s.mu.Unlock()
				return &triplestore.InvalidOperationError{Kind: op.Kind, Reason: "missing entity id or type"}
			}
			effects, err := s.upsertMany(ctx, sqlTx, tx.ID, now, op.EntityID, op.Data, op.EntityType, triplestore.ChangeAdd)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			committed = append(committed, effects...)
		case triplestore.OpUpdate:
			if op.EntityID == "" {
				s.mu.Unlock()
				return &triplestore.InvalidOperationError{Kind: op.Kind, Reason: "missing entity id"}
			}
			effects, err := s.upsertMany(ctx, sqlTx, tx.ID, now, op.EntityID, op.Data, "", triplestore.ChangeUpdate)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			committed = append(committed, effects...)
		case triplestore.OpDelete:
			if op.EntityID == "" {
				s.mu.Unlock()
				return &triplestore.InvalidOperationError{Kind: op.Kind, Reason: "missing entity id"}
			}
			effects, err := s.deleteEntity(ctx, sqlTx, op.EntityID)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			committed = append(committed, effects...)
			deletedEntities[op.EntityID] = true
		default:
			s.mu.Unlock()
			return &triplestore.InvalidOperationError{Kind: op.Kind, Reason: "unknown operation kind"}
		}
	}

	opsJSON, err := json.Marshal(tx.Operations)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to marshal operations: %w", err)
	}
	status := tx.Status
	if status == "" {
		status = triplestore.TxPending
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO transactions (tx_id, operations_json, created_at, status, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions))
		ON CONFLICT(tx_id) DO UPDATE SET status = excluded.status`,
		tx.ID, string(opsJSON), createdAt.Format(time.RFC3339Nano), status)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.mu.Unlock()

	for _, change := range committed {
		s.broadcaster.Publish(change)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) upsertMany(ctx context.Context, db execer, txID string, now time.Time, entityID string, data map[string]triplestore.Value, entityType string, kind triplestore.ChangeKind) ([]triplestore.TripleChange, error) {
	var effects []triplestore.TripleChange
	for attr, val := range data {
		if attr == triplestore.TypeAttribute {
			continue
		}
		change, err := s.upsertOne(ctx, db, txID, now, entityID, attr, val, kind)
		if err != nil {
			return nil, err
		}
		effects = append(effects, change)
	}
	if entityType != "" {
		change, err := s.upsertOne(ctx, db, txID, now, entityID, triplestore.TypeAttribute, entityType, triplestore.ChangeAdd)
		if err != nil {
			return nil, err
		}
		effects = append(effects, change)
	}
	return effects, nil
}

func (s *Store) upsertOne(ctx context.Context, db execer, txID string, now time.Time, entityID, attr string, val triplestore.Value, kind triplestore.ChangeKind) (triplestore.TripleChange, error) {
	valueJSON, err := json.Marshal(val)
	if err != nil {
		return triplestore.TripleChange{}, fmt.Errorf("failed to marshal value for %s.%s: %w", entityID, attr, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO triples (entity_id, attribute_name, value_json, tx_provenance, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, attribute_name) DO UPDATE SET
			value_json = excluded.value_json,
			tx_provenance = excluded.tx_provenance,
			created_at = excluded.created_at`,
		entityID, attr, string(valueJSON), txID, now.Format(time.RFC3339Nano))
	if err != nil {
		return triplestore.TripleChange{}, fmt.Errorf("failed to upsert triple: %w", err)
	}
	return triplestore.TripleChange{
		Kind: kind,
		Triple: triplestore.Triple{
			EntityID:      entityID,
			AttributeName: attr,
			Value:         val,
			TxProvenance:  txID,
			CreatedAt:     now,
		},
	}, nil
}

func (s *Store) deleteEntity(ctx context.Context, db execer, entityID string) ([]triplestore.TripleChange, error) {
	rows, err := db.QueryContext(ctx, `SELECT attribute_name, value_json FROM triples WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity for delete: %w", err)
	}
	var effects []triplestore.TripleChange
	for rows.Next() {
		var attr, valJSON string
		if err := rows.Scan(&attr, &valJSON); err != nil {
			rows.Close()
			return nil, err
		}
		var val triplestore.Value
		json.Unmarshal([]byte(valJSON), &val)
		effects = append(effects, triplestore.TripleChange{
			Kind: triplestore.ChangeDelete,
			Triple: triplestore.Triple{
				EntityID:      entityID,
				AttributeName: attr,
				Value:         val,
			},
		})
	}
	rows.Close()

	if _, err := db.ExecContext(ctx, `DELETE FROM triples WHERE entity_id = ?`, entityID); err != nil {
		return nil, fmt.Errorf("failed to delete entity: %w", err)
	}
	return effects, nil
}

// RollbackTransaction implements triplestore.Store.
func (s *Store) RollbackTransaction(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE tx_id = ?`, txID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check transaction status: %w", err)
	}
	if status != string(triplestore.TxPending) {
		return nil
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rollback: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM triples WHERE tx_provenance = ?`, txID); err != nil {
		return fmt.Errorf("failed to roll back triples: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM transactions WHERE tx_id = ?`, txID); err != nil {
		return fmt.Errorf("failed to roll back transaction record: %w", err)
	}
	return sqlTx.Commit()
}

// MarkTransactionSynced implements triplestore.Store.
func (s *Store) MarkTransactionSynced(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET status = ? WHERE tx_id = ?`, string(triplestore.TxSynced), txID)
	if err != nil {
		return fmt.Errorf("failed to mark transaction synced: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return triplestore.ErrTransactionNotFound
	}
	return nil
}

// GetPendingTransactions implements triplestore.Store.
func (s *Store) GetPendingTransactions(ctx context.Context) ([]triplestore.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, operations_json, created_at
		FROM transactions
		WHERE status = ?
		ORDER BY seq ASC`, string(triplestore.TxPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer rows.Close()

	var out []triplestore.Transaction
	for rows.Next() {
		var id, opsJSON, createdAtStr string
		if err := rows.Scan(&id, &opsJSON, &createdAtStr); err != nil {
			return nil, err
		}
		var ops []triplestore.Operation
		if err := json.Unmarshal([]byte(opsJSON), &ops); err != nil {
			return nil, fmt.Errorf("failed to decode operations for %s: %w", id, err)
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, createdAtStr)
		out = append(out, triplestore.Transaction{
			ID:         id,
			Operations: ops,
			CreatedAt:  createdAt,
			Status:     triplestore.TxPending,
		})
	}
	return out, nil
}

// QueryEntities implements triplestore.Store.
func (s *Store) QueryEntities(ctx context.Context, namespace string, opts triplestore.QueryOptions) ([]triplestore.Entity, error) {
	s.mu.RLock()
	entities, err := s.materialize(ctx, namespace)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return triplestore.ExecuteQuery(entities, opts)
}

func (s *Store) materialize(ctx context.Context, namespace string) ([]triplestore.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, attribute_name, value_json
		FROM triples
		WHERE entity_id IN (
			SELECT entity_id FROM triples WHERE attribute_name = ? AND value_json = ?
		)`, triplestore.TypeAttribute, mustJSON(namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to materialize entities: %w", err)
	}
	defer rows.Close()

	byEntity := make(map[string]triplestore.Entity)
	var order []string
	for rows.Next() {
		var entityID, attr, valJSON string
		if err := rows.Scan(&entityID, &attr, &valJSON); err != nil {
			return nil, err
		}
		var val triplestore.Value
		json.Unmarshal([]byte(valJSON), &val)

		e, ok := byEntity[entityID]
		if !ok {
			e = triplestore.Entity{"id": entityID}
			byEntity[entityID] = e
			order = append(order, entityID)
		}
		e[attr] = val
	}

	sort.Strings(order)
	out := make([]triplestore.Entity, 0, len(order))
	for _, id := range order {
		out = append(out, byEntity[id])
	}
	return out, nil
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// GetEntityType implements triplestore.Store.
func (s *Store) GetEntityType(ctx context.Context, entityID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var valJSON string
	err := s.db.QueryRowContext(ctx, `SELECT value_json FROM triples WHERE entity_id = ? AND attribute_name = ?`,
		entityID, triplestore.TypeAttribute).Scan(&valJSON)
	if err != nil {
		return "", false
	}
	var ns string
	if err := json.Unmarshal([]byte(valJSON), &ns); err != nil {
		return "", false
	}
	return ns, true
}

// ClearAll implements triplestore.Store.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM triples`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM transactions`)
	return err
}

// Changes implements triplestore.Store.
func (s *Store) Changes() (<-chan triplestore.TripleChange, func()) {
	return s.broadcaster.Subscribe()
}

var _ triplestore.Store = (*Store)(nil)

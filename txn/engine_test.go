package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/relaydb-go/triplestore"
	"github.com/relaydb/relaydb-go/txn"
)

type fakeEnqueuer struct {
	enqueued []triplestore.Transaction
}

func (f *fakeEnqueuer) Enqueue(tx triplestore.Transaction) {
	f.enqueued = append(f.enqueued, tx)
}

type failingStore struct {
	triplestore.Store
	rolledBack []string
}

func (f *failingStore) ApplyTransaction(ctx context.Context, tx triplestore.Transaction) error {
	return errors.New("boom")
}

func (f *failingStore) RollbackTransaction(ctx context.Context, txID string) error {
	f.rolledBack = append(f.rolledBack, txID)
	return nil
}

func TestTransactApplyAndEnqueue(t *testing.T) {
	store := triplestore.NewMemoryStore()
	enq := &fakeEnqueuer{}
	e := txn.New(store, enq)

	result, err := e.Transact(context.Background(), []triplestore.Operation{
		txn.Add("todos", "T1", map[string]triplestore.Value{"text": "buy milk"}),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.TxID)
	require.Equal(t, triplestore.TxPending, result.Status)

	require.Len(t, enq.enqueued, 1)
	require.Equal(t, result.TxID, enq.enqueued[0].ID)

	entities, err := store.QueryEntities(context.Background(), "todos", triplestore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entities, 1)
}

func TestTransactRollsBackAndDoesNotEnqueueOnFailure(t *testing.T) {
	store := &failingStore{}
	enq := &fakeEnqueuer{}
	e := txn.New(store, enq)

	_, err := e.Transact(context.Background(), []triplestore.Operation{
		txn.Add("todos", "T1", map[string]triplestore.Value{"text": "x"}),
	})
	require.Error(t, err)
	require.Empty(t, enq.enqueued)
	require.Len(t, store.rolledBack, 1)
}

func TestTransactWithNilEnqueuerStaysLocalOnly(t *testing.T) {
	store := triplestore.NewMemoryStore()
	e := txn.New(store, nil)

	result, err := e.Transact(context.Background(), []triplestore.Operation{
		txn.Add("todos", "T1", map[string]triplestore.Value{"text": "x"}),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.TxID)
}

func TestLegacyUpdateUsesUnknownEntityType(t *testing.T) {
	op := txn.LegacyUpdate("T1", map[string]triplestore.Value{"text": "x"})
	require.Equal(t, triplestore.OpUpdate, op.Kind)
	require.Equal(t, txn.UnknownEntityType, op.EntityType)
}

func TestSanitizeEntityIDFromJSONArrayLookAlike(t *testing.T) {
	got := txn.SanitizeEntityID(`["3fae1d3c-9f1e-4c9e-8c1a-1a2b3c4d5e6f"]`)
	require.Equal(t, "3fae1d3c-9f1e-4c9e-8c1a-1a2b3c4d5e6f", got)
}

func TestSanitizeEntityIDFallsBackToUUIDExtraction(t *testing.T) {
	got := txn.SanitizeEntityID("garbage-3fae1d3c-9f1e-4c9e-8c1a-1a2b3c4d5e6f-trailer")
	require.Equal(t, "3fae1d3c-9f1e-4c9e-8c1a-1a2b3c4d5e6f", got)
}

func TestSanitizeEntityIDPassesThroughCleanID(t *testing.T) {
	got := txn.SanitizeEntityID("T1")
	require.Equal(t, "T1", got)
}

func TestTransactDeleteSanitizesEntityID(t *testing.T) {
	store := triplestore.NewMemoryStore()
	ctx := context.Background()

	id := "3fae1d3c-9f1e-4c9e-8c1a-1a2b3c4d5e6f"
	require.NoError(t, store.ApplyTransaction(ctx, triplestore.Transaction{
		ID:     "tx-seed",
		Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{
			txn.Add("todos", id, map[string]triplestore.Value{"text": "x"}),
		},
	}))

	e := txn.New(store, nil)
	_, err := e.Transact(ctx, []triplestore.Operation{
		txn.Delete(`["` + id + `"]`),
	})
	require.NoError(t, err)

	_, ok := store.GetEntityType(ctx, id)
	require.False(t, ok)
}

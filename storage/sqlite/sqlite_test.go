package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/relaydb-go/storage/sqlite"
	"github.com/relaydb/relaydb-go/triplestore"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApplyTransactionAndQuery(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.ApplyTransaction(ctx, triplestore.Transaction{
		ID:     "tx-1",
		Status: triplestore.TxPending,
		Operations: []triplestore.Operation{{
			Kind:       triplestore.OpAdd,
			EntityType: "todos",
			EntityID:   "T1",
			Data:       map[string]triplestore.Value{"text": "a", "completed": false},
		}},
	})
	require.NoError(t, err)

	entities, err := s.QueryEntities(ctx, "todos", triplestore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "a", entities[0]["text"])
	require.Equal(t, "todos", entities[0][triplestore.TypeAttribute])
}

func TestPendingTransactionsSurviveAndDrainInOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"tx-a", "tx-b", "tx-c"} {
		err := s.ApplyTransaction(ctx, triplestore.Transaction{
			ID:     id,
			Status: triplestore.TxPending,
			Operations: []triplestore.Operation{{
				Kind: triplestore.OpUpdate, EntityID: "E1",
				Data: map[string]triplestore.Value{"n": id},
			}},
		})
		require.NoError(t, err)
	}

	pending, err := s.GetPendingTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.Equal(t, "tx-a", pending[0].ID)
	require.Equal(t, "tx-c", pending[2].ID)

	require.NoError(t, s.MarkTransactionSynced(ctx, "tx-b"))
	pending, err = s.GetPendingTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestDeleteRemovesAllTriples(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyTransaction(ctx, triplestore.Transaction{
		ID: "tx-1", Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{{
			Kind: triplestore.OpAdd, EntityType: "todos", EntityID: "T1",
			Data: map[string]triplestore.Value{"text": "a"},
		}},
	}))
	require.NoError(t, s.ApplyTransaction(ctx, triplestore.Transaction{
		ID: "tx-2", Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{{Kind: triplestore.OpDelete, EntityID: "T1"}},
	}))

	ns, ok := s.GetEntityType(ctx, "T1")
	require.False(t, ok)
	require.Empty(t, ns)

	entities, err := s.QueryEntities(ctx, "todos", triplestore.QueryOptions{})
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestRollbackTransactionRemovesOnlyPending(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyTransaction(ctx, triplestore.Transaction{
		ID: "tx-1", Status: triplestore.TxPending,
		Operations: []triplestore.Operation{{
			Kind: triplestore.OpAdd, EntityType: "todos", EntityID: "T1",
			Data: map[string]triplestore.Value{"text": "a"},
		}},
	}))

	require.NoError(t, s.RollbackTransaction(ctx, "tx-1"))

	entities, err := s.QueryEntities(ctx, "todos", triplestore.QueryOptions{})
	require.NoError(t, err)
	require.Empty(t, entities)

	// Rollback of an already-synced (or unknown) tx is a safe no-op.
	require.NoError(t, s.RollbackTransaction(ctx, "tx-1"))
}

func TestChangesDeliveredInCommitOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ch, unsubscribe := s.Changes()
	defer unsubscribe()

	require.NoError(t, s.ApplyTransaction(ctx, triplestore.Transaction{
		ID: "tx-1", Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{{
			Kind: triplestore.OpAdd, EntityType: "todos", EntityID: "T1",
			Data: map[string]triplestore.Value{"text": "a"},
		}},
	}))

	change := <-ch
	require.Equal(t, triplestore.ChangeAdd, change.Kind)
	require.Equal(t, "T1", change.Triple.EntityID)
}

package triplestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/relaydb-go/triplestore"
)

func addTodo(t *testing.T, s *triplestore.MemoryStore, id, text string, completed bool, views float64) {
	t.Helper()
	err := s.ApplyTransaction(context.Background(), triplestore.Transaction{
		ID:     "tx-" + id,
		Status: triplestore.TxPending,
		Operations: []triplestore.Operation{{
			Kind:       triplestore.OpAdd,
			EntityType: "todos",
			EntityID:   id,
			Data: map[string]triplestore.Value{
				"text":      text,
				"completed": completed,
				"views":     views,
			},
		}},
	})
	require.NoError(t, err)
}

func TestCreateThenQuery(t *testing.T) {
	// create, then read back.
	s := triplestore.NewMemoryStore()
	addTodo(t, s, "T1", "a", false, 0)

	entities, err := s.QueryEntities(context.Background(), "todos", triplestore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "T1", entities[0]["id"])
	require.Equal(t, "todos", entities[0][triplestore.TypeAttribute])
	require.Equal(t, "a", entities[0]["text"])
	require.Equal(t, false, entities[0]["completed"])
}

func TestUpdatePreservesOmittedAttributes(t *testing.T) {
	s := triplestore.NewMemoryStore()
	addTodo(t, s, "T1", "a", false, 0)

	err := s.ApplyTransaction(context.Background(), triplestore.Transaction{
		ID:     "tx-2",
		Status: triplestore.TxPending,
		Operations: []triplestore.Operation{{
			Kind:     triplestore.OpUpdate,
			EntityID: "T1",
			Data:     map[string]triplestore.Value{"completed": true},
		}},
	})
	require.NoError(t, err)

	entities, err := s.QueryEntities(context.Background(), "todos", triplestore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, true, entities[0]["completed"])
	require.Equal(t, "a", entities[0]["text"]) // preserved, not removed
}

func TestDeleteNoOpOnMissingEntity(t *testing.T) {
	s := triplestore.NewMemoryStore()
	err := s.ApplyTransaction(context.Background(), triplestore.Transaction{
		ID:     "tx-del",
		Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{{
			Kind:     triplestore.OpDelete,
			EntityID: "does-not-exist",
		}},
	})
	require.NoError(t, err)
}

func TestAtomicityRollbackOnError(t *testing.T) {
	// ApplyTransaction either fully commits or leaves no trace.
	s := triplestore.NewMemoryStore()
	err := s.ApplyTransaction(context.Background(), triplestore.Transaction{
		ID:     "tx-bad",
		Status: triplestore.TxPending,
		Operations: []triplestore.Operation{
			{Kind: triplestore.OpAdd, EntityType: "todos", EntityID: "T1", Data: map[string]triplestore.Value{"text": "a"}},
			{Kind: triplestore.OpAdd, EntityID: "", Data: map[string]triplestore.Value{"text": "bad"}},
		},
	})
	require.Error(t, err)

	entities, err := s.QueryEntities(context.Background(), "todos", triplestore.QueryOptions{})
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestOrderedAndPaged(t *testing.T) {
	// order by a numeric attribute, then take a page from the middle.
	s := triplestore.NewMemoryStore()
	views := map[string]float64{"P1": 75, "P2": 150, "P3": 200, "P4": 300, "P5": 50}
	for id, v := range views {
		err := s.ApplyTransaction(context.Background(), triplestore.Transaction{
			ID:     "tx-" + id,
			Status: triplestore.TxSynced,
			Operations: []triplestore.Operation{{
				Kind:       triplestore.OpAdd,
				EntityType: "posts",
				EntityID:   id,
				Data:       map[string]triplestore.Value{"views": v},
			}},
		})
		require.NoError(t, err)
	}

	limit, offset := 2, 1
	entities, err := s.QueryEntities(context.Background(), "posts", triplestore.QueryOptions{
		OrderBy: map[string]triplestore.Value{"views": "desc"},
		Limit:   &limit,
		Offset:  &offset,
	})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	require.Equal(t, float64(200), entities[0]["views"])
	require.Equal(t, float64(150), entities[1]["views"])
}

func TestOffsetBeyondLengthIsEmpty(t *testing.T) {
	s := triplestore.NewMemoryStore()
	addTodo(t, s, "T1", "a", false, 0)

	offset := 50
	entities, err := s.QueryEntities(context.Background(), "todos", triplestore.QueryOptions{Offset: &offset})
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestUnknownWhereOperatorDegradesToUnconstrained(t *testing.T) {
	s := triplestore.NewMemoryStore()
	addTodo(t, s, "T1", "a", false, 0)

	entities, err := s.QueryEntities(context.Background(), "todos", triplestore.QueryOptions{
		Where: triplestore.WhereClause{"text": map[string]triplestore.Value{"$bogus": "x"}},
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
}

func TestAggregateCountSumAvg(t *testing.T) {
	s := triplestore.NewMemoryStore()
	views := []float64{75, 150, 200, 300, 50}
	for i, v := range views {
		id := "P" + string(rune('1'+i))
		err := s.ApplyTransaction(context.Background(), triplestore.Transaction{
			ID:     "tx-" + id,
			Status: triplestore.TxSynced,
			Operations: []triplestore.Operation{{
				Kind:       triplestore.OpAdd,
				EntityType: "posts",
				EntityID:   id,
				Data:       map[string]triplestore.Value{"views": v},
			}},
		})
		require.NoError(t, err)
	}

	entities, err := s.QueryEntities(context.Background(), "posts", triplestore.QueryOptions{
		Aggregate: []triplestore.AggregateSpec{
			{Func: "count", Arg: "*", As: "n"},
			{Func: "sum", Arg: "views", As: "total"},
			{Func: "avg", Arg: "views", As: "mean"},
		},
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, 5, entities[0]["n"])
	require.Equal(t, float64(775), entities[0]["total"])
	require.Equal(t, float64(155), entities[0]["mean"])
}

func TestChangeStreamCommitOrder(t *testing.T) {
	s := triplestore.NewMemoryStore()
	ch, unsubscribe := s.Changes()
	defer unsubscribe()

	addTodo(t, s, "T1", "a", false, 0)
	change := <-ch
	require.Equal(t, triplestore.ChangeAdd, change.Kind)
}

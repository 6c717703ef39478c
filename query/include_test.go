package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/relaydb-go/query"
	"github.com/relaydb/relaydb-go/triplestore"
)

func seedUserAndPosts(t *testing.T, store *triplestore.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.ApplyTransaction(ctx, triplestore.Transaction{
		ID: "seed-user", Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{{
			Kind: triplestore.OpAdd, EntityType: "users", EntityID: "U1",
			Data: map[string]triplestore.Value{"name": "ada"},
		}},
	}))
	for _, p := range []struct{ id, title string }{{"P1", "first"}, {"P2", "second"}} {
		require.NoError(t, store.ApplyTransaction(ctx, triplestore.Transaction{
			ID: "seed-" + p.id, Status: triplestore.TxSynced,
			Operations: []triplestore.Operation{{
				Kind: triplestore.OpAdd, EntityType: "posts", EntityID: p.id,
				Data: map[string]triplestore.Value{"title": p.title, "authorId": "U1"},
			}},
		}))
	}
}

func TestIncludePluralOneToMany(t *testing.T) {
	store := triplestore.NewMemoryStore()
	seedUserAndPosts(t, store)

	e := query.New(store, nil, nil)
	defer e.Close()

	sub, err := e.Query(context.Background(), query.Description{
		"users": {Include: map[string]query.NamespaceQuery{"posts": {}}},
	})
	require.NoError(t, err)

	result := sub.Read()
	users := result.Data["users"]
	require.Len(t, users, 1)
	posts, ok := users[0]["posts"].([]triplestore.Entity)
	require.True(t, ok)
	require.Len(t, posts, 2)
}

func TestIncludeSingularOneToOne(t *testing.T) {
	store := triplestore.NewMemoryStore()
	seedUserAndPosts(t, store)

	e := query.New(store, nil, nil)
	defer e.Close()

	sub, err := e.Query(context.Background(), query.Description{
		"posts": {Include: map[string]query.NamespaceQuery{"author": {}}},
	})
	require.NoError(t, err)

	result := sub.Read()
	posts := result.Data["posts"]
	require.Len(t, posts, 2)
	for _, p := range posts {
		author, ok := p["author"].(triplestore.Entity)
		require.True(t, ok)
		require.Equal(t, "ada", author["name"])
	}
}

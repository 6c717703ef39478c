package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/relaydb-go/query"
	"github.com/relaydb/relaydb-go/triplestore"
)

func seedTodo(t *testing.T, store *triplestore.MemoryStore, id, text string, completed bool) {
	t.Helper()
	require.NoError(t, store.ApplyTransaction(context.Background(), triplestore.Transaction{
		ID:     "seed-" + id,
		Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{{
			Kind:       triplestore.OpAdd,
			EntityType: "todos",
			EntityID:   id,
			Data:       map[string]triplestore.Value{"text": text, "completed": completed},
		}},
	}))
}

func TestQueryReturnsMatchingEntities(t *testing.T) {
	store := triplestore.NewMemoryStore()
	seedTodo(t, store, "T1", "buy milk", false)
	seedTodo(t, store, "T2", "walk dog", true)

	e := query.New(store, nil, nil)
	defer e.Close()

	sub, err := e.Query(context.Background(), query.Description{
		"todos": {Where: triplestore.WhereClause{"completed": false}},
	})
	require.NoError(t, err)

	result := sub.Read()
	require.Equal(t, query.StatusSuccess, result.Status)
	require.Len(t, result.Data["todos"], 1)
	require.Equal(t, "buy milk", result.Data["todos"][0]["text"])
}

func TestQuerySameDescriptionReturnsSameSubscription(t *testing.T) {
	store := triplestore.NewMemoryStore()
	e := query.New(store, nil, nil)
	defer e.Close()

	desc := query.Description{"todos": {}}
	s1, err := e.Query(context.Background(), desc)
	require.NoError(t, err)
	s2, err := e.Query(context.Background(), desc)
	require.NoError(t, err)
	require.Same(t, s1, s2)
}

func TestQueryInvalidatesAfterCoalescingWindow(t *testing.T) {
	store := triplestore.NewMemoryStore()
	e := query.New(store, nil, nil)
	defer e.Close()

	sub, err := e.Query(context.Background(), query.Description{"todos": {}})
	require.NoError(t, err)
	require.Empty(t, sub.Read().Data["todos"])

	watch := sub.Watch()
	<-watch // drain the initial value

	seedTodo(t, store, "T1", "new item", false)

	select {
	case result := <-watch:
		require.Equal(t, query.StatusSuccess, result.Status)
		require.Len(t, result.Data["todos"], 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invalidation flush")
	}
}

type fakeRemoteCache struct {
	collections map[string][]map[string]any
}

func (f *fakeRemoteCache) CachedCollection(namespace string) ([]map[string]any, bool) {
	rows, ok := f.collections[namespace]
	return rows, ok
}

func TestQuerySeedsFromRemoteCacheFastPath(t *testing.T) {
	store := triplestore.NewMemoryStore()
	cache := &fakeRemoteCache{collections: map[string][]map[string]any{
		"todos": {
			{"id": "T1", "text": "cached item", "completed": false},
		},
	}}
	e := query.New(store, cache, nil)
	defer e.Close()

	sub, err := e.Query(context.Background(), query.Description{"todos": {}})
	require.NoError(t, err)

	result := sub.Read()
	require.Equal(t, query.StatusSuccess, result.Status)
	require.Len(t, result.Data["todos"], 1)
	require.Equal(t, "cached item", result.Data["todos"][0]["text"])
}

type fakeRemoteSubscriber struct {
	sent       map[string]any
	subscribed map[string]bool
}

func (f *fakeRemoteSubscriber) SendQuery(key string, desc any) error {
	if f.sent == nil {
		f.sent = map[string]any{}
	}
	f.sent[key] = desc
	if f.subscribed == nil {
		f.subscribed = map[string]bool{}
	}
	f.subscribed[key] = true
	return nil
}

func (f *fakeRemoteSubscriber) IsSubscribed(key string) bool {
	return f.subscribed[key]
}

func TestQueryRegistersRemoteSubscriptionOnce(t *testing.T) {
	store := triplestore.NewMemoryStore()
	sub := &fakeRemoteSubscriber{}
	e := query.New(store, nil, sub)
	defer e.Close()

	desc := query.Description{"todos": {}}
	_, err := e.Query(context.Background(), desc)
	require.NoError(t, err)
	_, err = e.Query(context.Background(), desc)
	require.NoError(t, err)

	require.Len(t, sub.sent, 1)
}

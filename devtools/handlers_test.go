package devtools_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/relaydb-go/attrregistry"
	"github.com/relaydb/relaydb-go/devtools"
	"github.com/relaydb/relaydb-go/triplestore"
)

func newTestHandler(t *testing.T) *devtools.Handler {
	t.Helper()
	store := triplestore.NewMemoryStore()
	require.NoError(t, store.ApplyTransaction(context.Background(), triplestore.Transaction{
		ID: "seed", Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{{
			Kind: triplestore.OpAdd, EntityType: "todos", EntityID: "T1",
			Data: map[string]triplestore.Value{"text": "buy milk"},
		}},
	}))
	registry := attrregistry.New()
	registry.Add(attrregistry.Descriptor{ID: "attr-1", Namespace: "todos", AttributeName: "text"})
	return &devtools.Handler{Store: store, Attrs: registry}
}

func TestListEntitiesReturnsNamespaceRows(t *testing.T) {
	h := newTestHandler(t)
	router := devtools.NewRouter(h, "")

	req := httptest.NewRequest(http.MethodGet, "/devtools/entities/todos", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "todos", body["namespace"])
}

func TestListAttrsReturnsRegistrySnapshot(t *testing.T) {
	h := newTestHandler(t)
	router := devtools.NewRouter(h, "")

	req := httptest.NewRequest(http.MethodGet, "/devtools/attrs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(1), body["count"])
}

func TestSyncStatusReportsDisabledWithoutSyncInfo(t *testing.T) {
	h := newTestHandler(t)
	router := devtools.NewRouter(h, "")

	req := httptest.NewRequest(http.MethodGet, "/devtools/sync", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "disabled", body["state"])
}

package devtools

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relaydb/relaydb-go/attrregistry"
	"github.com/relaydb/relaydb-go/triplestore"
)

// SyncStatusProvider is the narrow view of the Sync Engine devtools
// needs, declared locally so this package never imports sync directly.
type SyncStatusProvider interface {
	State() string
}

// Handler holds devtools' dependencies: read-only access to the Triple
// Store, the Attribute Registry, and (optionally) the Sync Engine.
type Handler struct {
	Store    triplestore.Store
	Attrs    *attrregistry.Registry
	SyncInfo SyncStatusProvider // nil when sync_enabled is false
}

// ListEntities dumps every entity of {namespace}. The query string is not
// read: no where, order, limit or offset is applied.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	entities, err := h.Store.QueryEntities(r.Context(), namespace, triplestore.QueryOptions{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"namespace": namespace, "entities": entities})
}

// ListAttrs dumps the Attribute Registry's current contents.
func (h *Handler) ListAttrs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"attrs": h.Attrs.Snapshot(), "count": h.Attrs.Len()})
}

// SyncStatus reports the Sync Engine's current connection state, or a
// fixed "disabled" status if sync is off.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.SyncInfo == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": "disabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": h.SyncInfo.State()})
}

// PendingTransactions dumps the durable log's pending (not yet synced)
// transactions.
func (h *Handler) PendingTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pending, err := h.Store.GetPendingTransactions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending, "count": len(pending)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

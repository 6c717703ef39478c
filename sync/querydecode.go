package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/relaydb/relaydb-go/triplestore"
)

// decodeQueryResponsePayload tries the two accepted query-response
// shapes in turn. It returns the decoded entity list, the namespace it
// belongs to, and whether decoding succeeded.
func (e *Engine) decodeQueryResponsePayload(payload map[string]any) ([]map[string]any, string, bool) {
	if rows, ns, ok := e.decodeDatalogShape(payload); ok {
		return rows, ns, true
	}
	return decodeCollectionShape(payload)
}

// decodeDatalogShape searches, in order, resultData.datalog-result,
// resultData.datalog, resultData.result.datalog-result, and
// resultData.data.datalog-result, where resultData is payload itself.
func (e *Engine) decodeDatalogShape(payload map[string]any) ([]map[string]any, string, bool) {
	candidates := []map[string]any{payload}
	if nested, ok := asMap(payload["result"]); ok {
		candidates = append(candidates, nested)
	}
	if nested, ok := asMap(payload["data"]); ok {
		candidates = append(candidates, nested)
	}

	for _, c := range candidates {
		for _, key := range []string{"datalog-result", "datalog"} {
			if dl, ok := asMap(c[key]); ok {
				rows, ok := dl["join-rows"]
				if !ok {
					continue
				}
				return e.decodeJoinRows(rows, payload)
			}
		}
	}
	return nil, "", false
}

// decodeJoinRows unwraps join-rows (which may be nested one extra level)
// and resolves each (entity_id, attr_id, value) row via the Attribute
// Registry, grouping the result by namespace.
func (e *Engine) decodeJoinRows(raw any, requestPayload map[string]any) ([]map[string]any, string, bool) {
	rows, ok := raw.([]any)
	if !ok || len(rows) == 0 {
		return nil, "", false
	}
	if first, ok := rows[0].([]any); ok && len(first) > 0 {
		if _, nested := first[0].([]any); nested {
			flat := make([]any, 0, len(rows))
			for _, group := range rows {
				if g, ok := group.([]any); ok {
					flat = append(flat, g...)
				}
			}
			rows = flat
		}
	}

	byEntity := make(map[string]map[string]any)
	order := make([]string, 0)
	namespaceByEntity := make(map[string]string)

	for _, r := range rows {
		row, ok := r.([]any)
		if !ok || len(row) < 3 {
			continue
		}
		entityID, _ := row[0].(string)
		attrID, _ := row[1].(string)
		value := row[2]
		if entityID == "" {
			continue
		}
		if _, exists := byEntity[entityID]; !exists {
			byEntity[entityID] = map[string]any{"id": entityID}
			order = append(order, entityID)
		}

		desc, known := e.attrs.Lookup(attrID)
		if !known {
			if b, isBool := value.(bool); isBool && !e.cfg.DisableCompletedHeuristic {
				e.cfg.Logger.Warn().Str("attr_id", attrID).Msg("sync: unresolved boolean attribute in query response, filed as completed")
				byEntity[entityID]["completed"] = b
				continue
			}
			e.cfg.Logger.Warn().Str("attr_id", attrID).Msg("sync: unresolved attribute id in query response, dropping triple")
			continue
		}
		if desc.AttributeName == triplestore.TypeAttribute {
			namespaceByEntity[entityID] = stringValue(value)
		}
		byEntity[entityID][desc.AttributeName] = value
	}

	byNamespace := make(map[string][]map[string]any)
	fallbackNS := namespaceFromRequest(requestPayload)
	for _, id := range order {
		ns := namespaceByEntity[id]
		if ns == "" {
			ns = fallbackNS
		}
		byNamespace[ns] = append(byNamespace[ns], byEntity[id])
	}

	// A single query response decodes to one namespace's worth of work
	// for this engine's synchronous apply path; multi-namespace datalog
	// batches apply each group independently.
	if len(byNamespace) == 1 {
		for ns, rows := range byNamespace {
			return rows, ns, true
		}
	}
	for ns, rows := range byNamespace {
		if ns != fallbackNS {
			e.applyDecodedCollection(ns, rows)
		}
	}
	if rows, ok := byNamespace[fallbackNS]; ok {
		return rows, fallbackNS, true
	}
	return nil, "", false
}

// decodeCollectionShape implements the plain-collection fallback: the
// request's own top-level namespace if it decodes to a list, else any
// top-level key whose value is a non-empty list of objects.
func decodeCollectionShape(payload map[string]any) ([]map[string]any, string, bool) {
	if q, ok := asMap(payload["q"]); ok {
		for ns := range q {
			if rows, ok := asEntityList(payload[ns]); ok {
				return rows, ns, true
			}
		}
	}
	for key, v := range payload {
		if key == "op" || key == "client-event-id" || key == "q" || key == "session-id" {
			continue
		}
		if rows, ok := asEntityList(v); ok && len(rows) > 0 {
			return rows, key, true
		}
	}
	return nil, "", false
}

func namespaceFromRequest(payload map[string]any) string {
	if q, ok := asMap(payload["q"]); ok {
		for ns := range q {
			return ns
		}
	}
	return defaultNamespace
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asEntityList(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// applyDecodedCollection reconciles the store with a decoded server
// collection: differential deletion for entities the server no longer
// has (unless recently created locally), adds/updates for everything the
// server reported, and a cache refresh for the Query Engine fast-path.
func (e *Engine) applyDecodedCollection(namespace string, decoded []map[string]any) {
	e.cache.store(namespace, decoded)

	serverIDs := make(map[string]struct{}, len(decoded))
	for _, row := range decoded {
		if id, ok := row["id"].(string); ok {
			serverIDs[id] = struct{}{}
		}
	}

	local, err := e.store.QueryEntities(bgCtx, namespace, triplestore.QueryOptions{})
	if err != nil {
		e.cfg.Logger.Warn().Err(err).Str("namespace", namespace).Msg("sync: failed to read local entities for differential deletion")
		local = nil
	}

	var ops []triplestore.Operation
	for _, entity := range local {
		id, _ := entity["id"].(string)
		if id == "" {
			continue
		}
		if _, onServer := serverIDs[id]; onServer {
			continue
		}
		if e.isRecentlyCreated(id) {
			continue
		}
		ops = append(ops, triplestore.Operation{Kind: triplestore.OpDelete, EntityID: id})
	}

	for _, row := range decoded {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		data := make(map[string]triplestore.Value, len(row))
		for k, v := range row {
			if k == "id" {
				continue
			}
			data[k] = v
		}
		data[triplestore.TypeAttribute] = namespace
		ops = append(ops, triplestore.Operation{Kind: triplestore.OpAdd, EntityType: namespace, EntityID: id, Data: data})
	}

	if len(ops) == 0 {
		return
	}
	if err := e.store.ApplyTransaction(bgCtx, triplestore.Transaction{
		ID:         uuid.NewString(),
		Operations: ops,
		CreatedAt:  time.Now(),
		Status:     triplestore.TxSynced,
	}); err != nil {
		e.cfg.Logger.Error().Err(err).Str("namespace", namespace).Msg("sync: failed to apply decoded collection")
	}
}

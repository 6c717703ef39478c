package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaydb/relaydb-go/attrregistry"
	"github.com/relaydb/relaydb-go/triplestore"
)

// handleFrame is the op dispatch table. Unknown ops are logged with
// their keys and the full payload rather than crashing the read loop.
func (e *Engine) handleFrame(f Frame) {
	switch f.Op {
	case "init-ok":
		e.handleInitOK(f)
	case "init-error":
		e.handleInitError(f)
	case "transact":
		e.handleInboundTransact(f)
	case "transact-ok":
		e.handleTransactOK(f)
	case "transaction-ack":
		e.handleTransactionAck(f)
	case "refresh", "refresh-query":
		e.handleRefresh(f)
	case "add-query-ok", "query-response", "query-result":
		e.handleQueryResponse(f)
	case "refresh-ok":
		e.handleRefreshOK(f)
	case "transaction":
		e.handleLegacyTransaction(f)
	case "error":
		e.handleError(f)
	case "join-room-ok":
		e.handleJoinRoomOK(f)
	case "leave-room-ok":
		e.handleLeaveRoomOK(f)
	case "presence", "refresh-presence", "set-presence-ok":
		e.handlePresenceFrame(f)
	default:
		e.cfg.Logger.Warn().Str("op", f.Op).RawJSON("payload", f.Raw).Msg("sync: unknown inbound op")
	}
}

type initOKPayload struct {
	SessionID string                  `json:"session-id"`
	Attrs     []AttrDescriptorPayload `json:"attrs"`
}

func (e *Engine) handleInitOK(f Frame) {
	var p initOKPayload
	if err := json.Unmarshal(f.Raw, &p); err != nil {
		e.cfg.Logger.Warn().Err(err).Msg("sync: malformed init-ok")
		return
	}

	e.connMu.Lock()
	e.sessionID = p.SessionID
	e.connMu.Unlock()

	for _, a := range p.Attrs {
		if len(a.ForwardIdentity) < 3 {
			continue
		}
		e.attrs.Add(attrregistry.Descriptor{
			ID:            a.ID,
			Namespace:     a.ForwardIdentity[1],
			AttributeName: a.ForwardIdentity[2],
		})
	}

	e.drainPendingQueries()
	e.replayPendingTransactions()
	e.rejoinActiveRooms()

	e.state.set(StateConnected)
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *Engine) handleInitError(f Frame) {
	var p errorPayload
	_ = json.Unmarshal(f.Raw, &p)
	msg := p.Error
	if msg == "" {
		msg = p.Message
	}
	e.cfg.Logger.Error().Str("error", msg).Msg("sync: init-error")
	// The error is only logged; the connection state is left as it is.
	// When the socket closes, the run loop reconnects after
	// ReconnectDelay as for any other close, auth errors included.
}

type transactPayload struct {
	ClientEventID string `json:"client-event-id"`
	TxSteps       []Step `json:"tx-steps"`
}

func (e *Engine) handleInboundTransact(f Frame) {
	var p transactPayload
	if err := json.Unmarshal(f.Raw, &p); err != nil {
		e.cfg.Logger.Warn().Err(err).Msg("sync: malformed transact")
		return
	}
	if p.ClientEventID != "" && e.wasSent(p.ClientEventID) {
		return // echo suppression
	}
	e.applyInboundSteps(p.TxSteps, p.ClientEventID)
}

func (e *Engine) applyInboundSteps(steps []Step, clientEventID string) {
	ops, err := e.stepsToOperations(steps)
	if err != nil {
		e.cfg.Logger.Warn().Err(err).Msg("sync: failed to translate inbound steps")
		return
	}
	if len(ops) == 0 {
		return
	}

	id := clientEventID
	if id == "" {
		id = uuid.NewString()
	}
	tx := triplestore.Transaction{
		ID:         id,
		Operations: ops,
		CreatedAt:  time.Now(),
		Status:     triplestore.TxSynced,
	}
	if err := e.store.ApplyTransaction(bgCtx, tx); err != nil {
		e.cfg.Logger.Error().Err(err).Str("tx_id", id).Msg("sync: failed to apply remote transaction")
	}
}

// stepsToOperations resolves attr ids via the Attribute Registry and
// groups add-triple steps by entity, emitting one Operation per entity:
// an update if the store already knows the entity's type, else an add
// under the default namespace. delete-entity steps become delete
// operations and add-attr steps are registered in the Attribute
// Registry rather than emitted. Unresolved attribute ids are
// skipped with a warning rather than aborting the batch, so one bad
// step never poisons the rest of an inbound transaction.
func (e *Engine) stepsToOperations(steps []Step) ([]triplestore.Operation, error) {
	perEntity := make(map[string]map[string]triplestore.Value)
	order := make([]string, 0)
	var ops []triplestore.Operation

	for _, s := range steps {
		switch s.Kind {
		case StepAddTriple:
			d, ok := e.attrs.Lookup(s.AttrID)
			if !ok {
				if b, isBool := s.Value.(bool); isBool && !e.cfg.DisableCompletedHeuristic {
					e.cfg.Logger.Warn().Str("attr_id", s.AttrID).Msg("sync: unresolved boolean attribute, heuristically filed as completed")
					if _, exists := perEntity[s.EntityID]; !exists {
						perEntity[s.EntityID] = map[string]triplestore.Value{}
						order = append(order, s.EntityID)
					}
					perEntity[s.EntityID]["completed"] = b
					continue
				}
				e.cfg.Logger.Warn().Str("attr_id", s.AttrID).Msg("sync: unresolved attribute id, dropping triple")
				continue
			}
			if _, exists := perEntity[s.EntityID]; !exists {
				perEntity[s.EntityID] = map[string]triplestore.Value{}
				order = append(order, s.EntityID)
			}
			perEntity[s.EntityID][d.AttributeName] = s.Value
		case StepDeleteEntity:
			ops = append(ops, triplestore.Operation{Kind: triplestore.OpDelete, EntityID: s.EntityID})
		case StepAddAttr:
			if s.Descriptor == nil || len(s.Descriptor.ForwardIdentity) < 3 {
				continue
			}
			e.attrs.Add(attrregistry.Descriptor{
				ID:            s.Descriptor.ID,
				Namespace:     s.Descriptor.ForwardIdentity[1],
				AttributeName: s.Descriptor.ForwardIdentity[2],
			})
		default:
			e.cfg.Logger.Warn().Str("kind", string(s.Kind)).Msg("sync: unrecognised tx-step kind")
		}
	}

	for _, entityID := range order {
		data := perEntity[entityID]
		namespace, known := e.store.GetEntityType(bgCtx, entityID)
		if !known {
			ops = append(ops, triplestore.Operation{Kind: triplestore.OpAdd, EntityType: defaultNamespace, EntityID: entityID, Data: data})
			continue
		}
		ops = append(ops, triplestore.Operation{Kind: triplestore.OpUpdate, EntityType: namespace, EntityID: entityID, Data: data})
	}
	return ops, nil
}

type eventIDPayload struct {
	ClientEventID string `json:"client-event-id"`
	TxID          string `json:"tx-id"`
}

func (e *Engine) handleTransactOK(f Frame) {
	var p eventIDPayload
	_ = json.Unmarshal(f.Raw, &p)
	if p.ClientEventID == "" {
		return
	}
	if err := e.store.MarkTransactionSynced(bgCtx, p.ClientEventID); err != nil {
		e.cfg.Logger.Warn().Err(err).Str("tx_id", p.ClientEventID).Msg("sync: failed to mark transaction synced")
	}
}

func (e *Engine) handleTransactionAck(f Frame) {
	var p eventIDPayload
	_ = json.Unmarshal(f.Raw, &p)
	if p.TxID == "" {
		return
	}
	if err := e.store.MarkTransactionSynced(bgCtx, p.TxID); err != nil {
		e.cfg.Logger.Warn().Err(err).Str("tx_id", p.TxID).Msg("sync: failed to mark transaction synced")
	}
}

func (e *Engine) handleRefresh(f Frame) {
	var generic map[string]any
	if err := json.Unmarshal(f.Raw, &generic); err != nil {
		return
	}
	if decoded, ns, ok := e.decodeQueryResponsePayload(generic); ok {
		e.applyDecodedCollection(ns, decoded)
		return
	}
	e.triggerTargetedInvalidation()
}

// triggerTargetedInvalidation applies a synthetic, empty synced
// transaction against the invalidation sentinel entity so the Query
// Engine's debounce timer fires without the invalidator itself reacting
// to it (the sentinel is explicitly ignored by query.invalidator).
func (e *Engine) triggerTargetedInvalidation() {
	_ = e.store.ApplyTransaction(bgCtx, triplestore.Transaction{
		ID:     uuid.NewString(),
		Status: triplestore.TxSynced,
		Operations: []triplestore.Operation{{
			Kind:       triplestore.OpAdd,
			EntityType: "__internal",
			EntityID:   invalidationSentinelEntity,
			Data:       map[string]triplestore.Value{"touched_at": time.Now().UnixMilli()},
		}},
	})
}

func (e *Engine) handleQueryResponse(f Frame) {
	var generic map[string]any
	if err := json.Unmarshal(f.Raw, &generic); err != nil {
		e.cfg.Logger.Warn().Err(err).Msg("sync: malformed query response")
		return
	}
	decoded, ns, ok := e.decodeQueryResponsePayload(generic)
	if !ok {
		return
	}
	e.applyDecodedCollection(ns, decoded)
}

type refreshOKPayload struct {
	Computations []struct {
		InstaQLResult map[string]any `json:"instaql-result"`
	} `json:"computations"`
}

func (e *Engine) handleRefreshOK(f Frame) {
	var p refreshOKPayload
	if err := json.Unmarshal(f.Raw, &p); err != nil {
		e.cfg.Logger.Warn().Err(err).Msg("sync: malformed refresh-ok")
		return
	}
	for _, c := range p.Computations {
		if decoded, ns, ok := e.decodeQueryResponsePayload(c.InstaQLResult); ok {
			if e.isDuplicatePayload("refresh-ok:"+ns, c.InstaQLResult) {
				continue
			}
			e.applyDecodedCollection(ns, decoded)
		}
	}
}

func (e *Engine) handleLegacyTransaction(f Frame) {
	var probe struct {
		TxSteps []Step `json:"tx-steps"`
	}
	if err := json.Unmarshal(f.Raw, &probe); err == nil && len(probe.TxSteps) > 0 {
		var p transactPayload
		_ = json.Unmarshal(f.Raw, &p)
		if p.ClientEventID != "" && e.wasSent(p.ClientEventID) {
			return
		}
		e.applyInboundSteps(probe.TxSteps, p.ClientEventID)
		return
	}

	var tx triplestore.Transaction
	if err := json.Unmarshal(f.Raw, &tx); err != nil {
		e.cfg.Logger.Warn().Err(err).Msg("sync: malformed legacy transaction")
		return
	}
	tx.Status = triplestore.TxSynced
	if err := e.store.ApplyTransaction(bgCtx, tx); err != nil {
		e.cfg.Logger.Error().Err(err).Msg("sync: failed to apply legacy transaction")
	}
}

func (e *Engine) handleError(f Frame) {
	var p errorPayload
	_ = json.Unmarshal(f.Raw, &p)
	msg := p.Message
	if msg == "" {
		msg = p.Error
	}
	e.cfg.Logger.Error().Str("error", msg).Msg("sync: server error")
}

type roomPayload struct {
	RoomType string `json:"room-type"`
	RoomID   string `json:"room-id"`
}

func (e *Engine) handleJoinRoomOK(f Frame) {
	var p roomPayload
	_ = json.Unmarshal(f.Raw, &p)
	e.rooms.markJoined(p.RoomType, p.RoomID)
}

func (e *Engine) handleLeaveRoomOK(f Frame) {
	var p roomPayload
	_ = json.Unmarshal(f.Raw, &p)
	e.rooms.markLeft(p.RoomType, p.RoomID)
}

func (e *Engine) handlePresenceFrame(f Frame) {
	var payload map[string]any
	_ = json.Unmarshal(f.Raw, &payload)
	e.presence.HandlePresence(f.Op, payload)
}

func (e *Engine) drainPendingQueries() {
	e.pendMu.Lock()
	pending := e.pendingQueries
	e.pendingQueries = nil
	e.pendMu.Unlock()

	for _, pq := range pending {
		frame := addQueryFrame(pq.q, pq.key, e.sessionIDSnapshot())
		if err := e.sendRaw(frame); err != nil {
			e.pendMu.Lock()
			e.pendingQueries = append(e.pendingQueries, pq)
			e.pendMu.Unlock()
		}
	}
}

func (e *Engine) replayPendingTransactions() {
	pending, err := e.store.GetPendingTransactions(bgCtx)
	if err != nil {
		e.cfg.Logger.Warn().Err(err).Msg("sync: failed to load pending transactions for replay")
		return
	}
	for _, tx := range pending {
		e.Enqueue(tx)
	}
}

func (e *Engine) rejoinActiveRooms() {
	for _, k := range e.rooms.activeRooms() {
		_ = e.sendRaw(joinRoomFrame(k.roomType, k.roomID, newClientEventID()))
		time.Sleep(5 * time.Millisecond)
	}
}

func (e *Engine) isDuplicatePayload(channel string, payload any) bool {
	b, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	prefixLen := len(b)
	if prefixLen > 64 {
		prefixLen = 64
	}
	hash := fmt.Sprintf("%d:%s", len(b), string(b[:prefixLen]))

	e.hashMu.Lock()
	defer e.hashMu.Unlock()
	if e.lastHash[channel] == hash {
		return true
	}
	e.lastHash[channel] = hash
	return false
}

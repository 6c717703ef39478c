package sync

import (
	"time"

	"github.com/relaydb/relaydb-go/triplestore"
)

// defaultNamespace is the historical fallback used when a transaction's
// namespace cannot be determined any other way. It must be preserved.
const defaultNamespace = "todos"

// legacyUnknownNamespace is the placeholder EntityType written by
// txn.LegacyUpdate; it is resolved through Store.GetEntityType.
const legacyUnknownNamespace = "unknown"

// Enqueue implements txn.Enqueuer: it appends tx to the outbound queue
// and wakes the drain goroutine. Called by the Transaction Engine
// immediately after a transaction is durably applied locally.
func (e *Engine) Enqueue(tx triplestore.Transaction) {
	e.outMu.Lock()
	e.outQueue = append(e.outQueue, tx)
	e.outMu.Unlock()

	e.invalidateTouchedNamespaces(tx)

	select {
	case e.outSignal <- struct{}{}:
	default:
	}
}

func (e *Engine) invalidateTouchedNamespaces(tx triplestore.Transaction) {
	seen := make(map[string]struct{})
	for _, op := range tx.Operations {
		ns := op.EntityType
		if ns == "" || ns == legacyUnknownNamespace {
			ns = ""
			if got, ok := e.store.GetEntityType(bgCtx, op.EntityID); ok {
				ns = got
			}
		}
		if ns == "" {
			continue
		}
		if _, ok := seen[ns]; ok {
			continue
		}
		seen[ns] = struct{}{}
		e.cache.invalidate(ns)
	}
}

// drainOutbound transmits queued transactions in enqueue order, pacing
// sends by defaultPacingDelay, until stop is closed. If the socket is
// unavailable, the transaction stays at the front of the queue and
// drainOutbound returns; it resumes on the next successful connection.
func (e *Engine) drainOutbound(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-e.outSignal:
		case <-time.After(defaultPacingDelay):
		}

		for {
			select {
			case <-stop:
				return
			default:
			}

			e.outMu.Lock()
			if len(e.outQueue) == 0 {
				e.outMu.Unlock()
				break
			}
			tx := e.outQueue[0]
			e.outMu.Unlock()

			if err := e.sendTransaction(tx); err != nil {
				e.cfg.Logger.Warn().Err(err).Str("tx_id", tx.ID).Msg("sync: send transaction failed, will retry on reconnect")
				return
			}

			e.outMu.Lock()
			if len(e.outQueue) > 0 && e.outQueue[0].ID == tx.ID {
				e.outQueue = e.outQueue[1:]
			}
			e.outMu.Unlock()

			time.Sleep(defaultPacingDelay)
		}
	}
}

// sendTransaction translates tx to tx-steps and transmits it, recording
// bookkeeping (sent-event-ids, recently-created-entities) before the
// write so a fast echo can't race ahead of it.
func (e *Engine) sendTransaction(tx triplestore.Transaction) error {
	steps, err := e.translateTransaction(tx)
	if err != nil {
		return err
	}

	e.markSent(tx.ID)
	for _, op := range tx.Operations {
		if op.Kind == triplestore.OpAdd {
			e.markRecentlyCreated(op.EntityID)
		}
	}

	frame := transactFrame(steps, tx.ID, tx.CreatedAt.UnixMilli(), 1)
	return e.sendRaw(frame)
}

// translateTransaction converts a local transaction to wire steps:
// namespace resolution and per-operation step emission. Delete entity ids
// are used as given; the legacy sanitisation already happened in the
// Transaction Engine before the transaction was enqueued.
func (e *Engine) translateTransaction(tx triplestore.Transaction) ([]Step, error) {
	namespace := inferNamespace(tx)

	var steps []Step
	for _, op := range tx.Operations {
		switch op.Kind {
		case triplestore.OpAdd, triplestore.OpUpdate:
			ns := op.EntityType
			if ns == legacyUnknownNamespace {
				if got, ok := e.store.GetEntityType(bgCtx, op.EntityID); ok {
					ns = got
				}
			}
			if ns == "" || ns == legacyUnknownNamespace {
				ns = namespace
			}
			for attr, value := range op.Data {
				if attr == triplestore.TypeAttribute {
					continue
				}
				attrID, ok := e.attrs.AttrID(ns, attr)
				if !ok {
					e.cfg.Logger.Warn().Str("namespace", ns).Str("attr", attr).Msg("sync: attribute not yet registered, skipping field")
					continue
				}
				steps = append(steps, Step{Kind: StepAddTriple, EntityID: op.EntityID, AttrID: attrID, Value: value})
			}
		case triplestore.OpDelete:
			entityID := op.EntityID
			ns, ok := e.store.GetEntityType(bgCtx, entityID)
			if !ok {
				ns = namespace
			}
			steps = append(steps, Step{Kind: StepDeleteEntity, EntityID: entityID, Namespace: ns})
		}
	}
	return steps, nil
}

// inferNamespace determines a transaction's namespace from the first
// operation carrying a "__type" value, else the first operation's
// EntityType, else the historical default. This fallback chain is
// explicit and must be preserved.
func inferNamespace(tx triplestore.Transaction) string {
	for _, op := range tx.Operations {
		if t, ok := op.Data[triplestore.TypeAttribute]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, op := range tx.Operations {
		if op.EntityType != "" {
			return op.EntityType
		}
	}
	return defaultNamespace
}

func (e *Engine) markSent(txID string) {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	e.sentEventIDs[txID] = struct{}{}
	e.sentEventOrder = append(e.sentEventOrder, txID)
	if len(e.sentEventOrder) > sentEventIDsCap {
		e.sentEventIDs = make(map[string]struct{}, sentEventIDsCap)
		e.sentEventOrder = nil
	}
}

func (e *Engine) wasSent(txID string) bool {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	_, ok := e.sentEventIDs[txID]
	return ok
}

func (e *Engine) markRecentlyCreated(entityID string) {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	e.recentlyCreated[entityID] = time.Now()
	e.insertsSince++
	if e.insertsSince >= recentlyCreatedSweepEv {
		e.insertsSince = 0
		e.sweepRecentlyCreatedLocked()
	}
}

func (e *Engine) isRecentlyCreated(entityID string) bool {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	t, ok := e.recentlyCreated[entityID]
	if !ok {
		return false
	}
	return time.Since(t) < recentlyCreatedWindow
}

func (e *Engine) sweepRecentlyCreatedLocked() {
	now := time.Now()
	for id, t := range e.recentlyCreated {
		if now.Sub(t) > recentlyCreatedMaxAge {
			delete(e.recentlyCreated, id)
		}
	}
}

// SendQuery implements query.RemoteSubscriber: it registers key as
// subscribed and emits "add-query", queuing for later if the socket is
// not ready.
func (e *Engine) SendQuery(key string, q any) error {
	e.pendMu.Lock()
	e.subscribed[key] = struct{}{}
	e.pendMu.Unlock()

	frame := addQueryFrame(q, key, e.sessionIDSnapshot())
	if err := e.sendRaw(frame); err != nil {
		e.pendMu.Lock()
		e.pendingQueries = append(e.pendingQueries, pendingQuery{key: key, q: q})
		e.pendMu.Unlock()
	}
	return nil
}

// IsSubscribed implements query.RemoteSubscriber.
func (e *Engine) IsSubscribed(key string) bool {
	e.pendMu.Lock()
	defer e.pendMu.Unlock()
	_, ok := e.subscribed[key]
	return ok
}

func (e *Engine) sessionIDSnapshot() string {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	return e.sessionID
}

// JoinRoom / LeaveRoom are thin passthroughs; room membership is
// reconciled on (re)connect from the active set.
func (e *Engine) JoinRoom(roomType, roomID string) error {
	e.rooms.markActive(roomType, roomID)
	return e.sendRaw(joinRoomFrame(roomType, roomID, newClientEventID()))
}

func (e *Engine) LeaveRoom(roomType, roomID string) error {
	e.rooms.markInactive(roomType, roomID)
	return e.sendRaw(leaveRoomFrame(roomType, roomID, newClientEventID()))
}

package query

import (
	"context"
	"sync"
	"time"

	"github.com/relaydb/relaydb-go/triplestore"
)

// invalidationSentinelEntity is ignored by the invalidator so that a
// synthetic refresh transaction targeting it (used by the Sync Engine to
// force a targeted re-evaluation) never itself triggers another round of
// invalidation.
const invalidationSentinelEntity = "__query_invalidation"

// quiescenceWindow is the coalescing delay between a relevant change and
// the invalidator re-running affected queries.
const quiescenceWindow = 200 * time.Millisecond

// invalidator watches the Triple Store's change stream and, after a burst
// of relevant changes goes quiet for quiescenceWindow, re-runs every
// cached query whose namespace set intersects the changed namespaces.
type invalidator struct {
	store triplestore.Store

	mu      sync.Mutex
	dirty   map[string]struct{} // namespaces touched since the last flush
	timer   *time.Timer
	onFlush func(namespaces map[string]struct{})

	unsubscribe func()
}

func newInvalidator(store triplestore.Store, onFlush func(namespaces map[string]struct{})) *invalidator {
	inv := &invalidator{
		store:   store,
		dirty:   make(map[string]struct{}),
		onFlush: onFlush,
	}
	ch, unsubscribe := store.Changes()
	inv.unsubscribe = unsubscribe
	go inv.run(ch)
	return inv
}

func (inv *invalidator) run(ch <-chan triplestore.TripleChange) {
	for change := range ch {
		inv.observe(change)
	}
}

func (inv *invalidator) observe(change triplestore.TripleChange) {
	if change.Triple.EntityID == invalidationSentinelEntity {
		return
	}

	ns := inv.namespaceOf(change)
	if ns == "" {
		return
	}

	inv.mu.Lock()
	inv.dirty[ns] = struct{}{}
	if inv.timer != nil {
		inv.timer.Stop()
	}
	inv.timer = time.AfterFunc(quiescenceWindow, inv.flush)
	inv.mu.Unlock()
}

// namespaceOf resolves the namespace a change belongs to: directly, if
// the change is itself a "__type" triple, or via the entity's recorded
// type otherwise.
func (inv *invalidator) namespaceOf(change triplestore.TripleChange) string {
	if change.Triple.AttributeName == triplestore.TypeAttribute {
		if ns, ok := change.Triple.Value.(string); ok {
			return ns
		}
		return ""
	}
	ns, _ := inv.store.GetEntityType(context.Background(), change.Triple.EntityID)
	return ns
}

func (inv *invalidator) flush() {
	inv.mu.Lock()
	namespaces := inv.dirty
	inv.dirty = make(map[string]struct{})
	inv.timer = nil
	inv.mu.Unlock()

	if len(namespaces) == 0 {
		return
	}
	inv.onFlush(namespaces)
}

func (inv *invalidator) Close() {
	inv.mu.Lock()
	if inv.timer != nil {
		inv.timer.Stop()
	}
	inv.mu.Unlock()
	inv.unsubscribe()
}

package query

import (
	"context"
	"sync"

	"github.com/relaydb/relaydb-go/triplestore"
)

// RemoteCache is the narrow view of the Sync Engine's per-namespace
// query-result cache the Query Engine needs for its fast-path. Declaring
// it here rather than importing the sync package keeps the two packages
// decoupled (spec Design Notes' dependency-inversion note, applied
// symmetrically to this collaboration).
type RemoteCache interface {
	CachedCollection(namespace string) ([]map[string]any, bool)
}

// RemoteSubscriber lets the Query Engine ask the Sync Engine to subscribe
// to a query upstream without importing it. desc is passed as the raw
// wire-shaped tree (not the Description type) precisely so the Sync
// Engine's implementation never needs to import this package either.
type RemoteSubscriber interface {
	SendQuery(key string, desc any) error
	IsSubscribed(key string) bool
}

// Engine is the Query Engine: compiles Descriptions, serves cached
// Subscriptions, seeds new ones from the remote cache fast-path, and
// keeps them current via the invalidator.
type Engine struct {
	store       triplestore.Store
	remoteCache RemoteCache
	remoteSub   RemoteSubscriber
	strict      bool

	mu            sync.Mutex
	subscriptions map[string]*entry

	inv *invalidator
}

type entry struct {
	desc Description
	sub  *Subscription
}

// New creates a Query Engine over store. remoteCache/remoteSub may be nil
// (e.g. sync disabled), in which case the fast-path and remote
// subscription steps are simply skipped.
func New(store triplestore.Store, remoteCache RemoteCache, remoteSub RemoteSubscriber) *Engine {
	e := &Engine{
		store:         store,
		remoteCache:   remoteCache,
		remoteSub:     remoteSub,
		subscriptions: make(map[string]*entry),
	}
	e.inv = newInvalidator(store, e.onNamespacesDirty)
	return e
}

// Close releases the Engine's invalidator goroutine.
func (e *Engine) Close() {
	e.inv.Close()
}

// SetStrict controls whether an unknown where-clause operator is treated
// as an error (true) or silently degrades to "no constraint" (false, the
// default).
func (e *Engine) SetStrict(strict bool) {
	e.strict = strict
}

// Query compiles desc and returns its Subscription, creating one (seeded
// from the remote cache fast-path and registered for remote subscription)
// if this is the first request for this exact Description.
func (e *Engine) Query(ctx context.Context, desc Description) (*Subscription, error) {
	key, err := CacheKey(desc)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if ex, ok := e.subscriptions[key]; ok {
		e.mu.Unlock()
		return ex.sub, nil
	}
	sub := newSubscription(key)
	e.subscriptions[key] = &entry{desc: desc, sub: sub}
	e.mu.Unlock()

	if e.seedFromRemoteCache(ctx, desc, sub) {
		// already published a success value; still ensure remote
		// subscription happens so future pushes keep it fresh.
	} else if result, err := e.execute(ctx, desc); err == nil {
		sub.publish(result)
	} else {
		sub.publish(Result{Status: StatusError, Err: err})
	}

	e.ensureRemoteSubscription(key, desc)
	return sub, nil
}

// ResubscribeAll re-sends the remote subscription of every cached query
// whose key the RemoteSubscriber does not report as already subscribed.
// Nothing in this module calls it; the root client does not react to
// connection-state transitions.
func (e *Engine) ResubscribeAll() {
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.subscriptions))
	for _, ex := range e.subscriptions {
		entries = append(entries, ex)
	}
	e.mu.Unlock()

	for _, ex := range entries {
		key, err := CacheKey(ex.desc)
		if err != nil {
			continue
		}
		e.ensureRemoteSubscription(key, ex.desc)
	}
}

func (e *Engine) ensureRemoteSubscription(key string, desc Description) {
	if e.remoteSub == nil || e.remoteSub.IsSubscribed(key) {
		return
	}
	_ = e.remoteSub.SendQuery(key, canonicalizeDescription(desc))
}

// seedFromRemoteCache applies desc's own where/order/limit/offset locally
// to any cached remote collection for each top-level namespace, and
// publishes a success Result if at least one namespace hit the cache.
func (e *Engine) seedFromRemoteCache(ctx context.Context, desc Description, sub *Subscription) bool {
	if e.remoteCache == nil {
		return false
	}
	data := make(map[string][]triplestore.Entity)
	hit := false
	for ns, nq := range desc {
		cached, ok := e.remoteCache.CachedCollection(ns)
		if !ok {
			continue
		}
		hit = true
		entities := make([]triplestore.Entity, len(cached))
		for i, row := range cached {
			entities[i] = triplestore.Entity(row)
		}
		opts := namespaceQueryToOptions(nq)
		opts.Strict = e.strict
		result, err := triplestore.ExecuteQuery(entities, opts)
		if err != nil {
			continue
		}
		if err := expandIncludes(ctx, e.store, ns, result, nq.Include, e.strict); err != nil {
			continue
		}
		data[ns] = result
	}
	if !hit {
		return false
	}
	sub.publish(Result{Status: StatusSuccess, Data: data})
	return true
}

func (e *Engine) execute(ctx context.Context, desc Description) (Result, error) {
	data := make(map[string][]triplestore.Entity, len(desc))
	for ns, nq := range desc {
		opts := namespaceQueryToOptions(nq)
		opts.Strict = e.strict
		entities, err := e.store.QueryEntities(ctx, ns, opts)
		if err != nil {
			return Result{}, err
		}
		if err := expandIncludes(ctx, e.store, ns, entities, nq.Include, e.strict); err != nil {
			return Result{}, err
		}
		data[ns] = entities
	}
	return Result{Status: StatusSuccess, Data: data}, nil
}

// onNamespacesDirty is the invalidator's flush callback: it re-executes
// every cached query whose namespace set intersects namespaces and
// republishes the new result.
func (e *Engine) onNamespacesDirty(namespaces map[string]struct{}) {
	e.mu.Lock()
	affected := make([]*entry, 0)
	for _, ex := range e.subscriptions {
		if intersects(ex.desc, namespaces) {
			affected = append(affected, ex)
		}
	}
	e.mu.Unlock()

	ctx := context.Background()
	for _, ex := range affected {
		result, err := e.execute(ctx, ex.desc)
		if err != nil {
			ex.sub.publish(Result{Status: StatusError, Err: err})
			continue
		}
		ex.sub.publish(result)
	}
}

func intersects(desc Description, namespaces map[string]struct{}) bool {
	for ns := range desc {
		if _, ok := namespaces[ns]; ok {
			return true
		}
	}
	return false
}

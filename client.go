/*
client.go - Root facade: wires the Triple Store, Transaction Engine, Query
Engine, Sync Engine and devtools router into one constructible, startable
object.

PURPOSE:
  Client is the one type applications import. It owns the durable store,
  hands the Sync Engine to the Transaction Engine as its Enqueuer, hands
  the Sync Engine to the Query Engine as its RemoteCache/RemoteSubscriber,
  and exposes Transact/Query/Start/Stop as the public surface.

LIFECYCLE:
  New builds every collaborator but starts nothing. Start opens the
  session (if sync is enabled) and replays any pending transactions left
  over from a prior process. Stop closes the session and releases the
  Query Engine's subscriptions; the local store itself is never closed by
  Stop, since further local-only reads/writes remain valid.

SEE ALSO:
  - config.go: Config and functional options
  - errors.go: sentinel errors this file returns
  - txn/engine.go, query/engine.go, sync/engine.go: the wired collaborators
*/
package relaydb

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/relaydb/relaydb-go/attrregistry"
	"github.com/relaydb/relaydb-go/devtools"
	"github.com/relaydb/relaydb-go/query"
	"github.com/relaydb/relaydb-go/storage/sqlite"
	syncengine "github.com/relaydb/relaydb-go/sync"
	"github.com/relaydb/relaydb-go/triplestore"
	"github.com/relaydb/relaydb-go/txn"
)

// Client is a local-first, optionally-synchronizing triple-store handle.
type Client struct {
	cfg   Config
	store triplestore.Store
	attrs *attrregistry.Registry

	txn   *txn.Engine
	query *query.Engine
	sync  *syncengine.Engine // nil when Config.SyncEnabled is false

	devtoolsHandler *devtools.Handler

	mu      sync.Mutex
	started bool
}

// syncStateAdapter narrows sync.Engine.State() (ConnectionState) to the
// devtools.SyncStatusProvider interface (State() string): distinct named
// types never satisfy an interface by underlying type alone.
type syncStateAdapter struct {
	engine *syncengine.Engine
}

func (a syncStateAdapter) State() string {
	return string(a.engine.State())
}

// New constructs a Client for appID. No I/O happens until Start.
func New(appID string, opts ...Option) (*Client, error) {
	if appID == "" {
		return nil, ErrAppIDRequired
	}
	cfg := newConfig(appID, opts)

	store, err := openStore(cfg.PersistenceDir)
	if err != nil {
		return nil, fmt.Errorf("relaydb: open store: %w", err)
	}

	attrs := attrregistry.New()

	c := &Client{cfg: cfg, store: store, attrs: attrs}

	var enqueuer txn.Enqueuer
	var remoteCache query.RemoteCache
	var remoteSub query.RemoteSubscriber

	if cfg.SyncEnabled {
		syncCfg := syncengine.Config{
			AppID:                     cfg.AppID,
			BaseURL:                   cfg.BaseURL,
			RefreshToken:              cfg.RefreshToken,
			ReconnectDelay:            cfg.ReconnectDelay,
			Logger:                    cfg.Logger,
			DisableCompletedHeuristic: cfg.DisableCompletedHeuristic,
		}
		c.sync = syncengine.New(syncCfg, store, attrs)
		enqueuer = c.sync
		remoteCache = c.sync
		remoteSub = c.sync
	}

	c.txn = txn.New(store, enqueuer)
	c.query = query.New(store, remoteCache, remoteSub)
	c.query.SetStrict(cfg.StrictWhereOperators)

	h := &devtools.Handler{Store: store, Attrs: attrs}
	if c.sync != nil {
		h.SyncInfo = syncStateAdapter{engine: c.sync}
	}
	c.devtoolsHandler = h

	return c, nil
}

func openStore(dir string) (triplestore.Store, error) {
	if dir == "" || dir == ":memory:" {
		return triplestore.NewMemoryStore(), nil
	}
	return sqlite.New(dir)
}

// Start opens the Sync Engine's session (if enabled) and replays any
// transactions left pending from a previous process. Calling Start twice
// without an intervening Stop returns ErrAlreadyStarted.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	if c.sync != nil {
		c.sync.Start(ctx)
	}
	c.started = true
	return nil
}

// Stop closes the Sync Engine's session and releases Query Engine
// subscriptions. The local store remains open and usable afterward.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	if c.sync != nil {
		c.sync.Stop()
	}
	c.query.Close()
	c.started = false
	return nil
}

// Transact applies ops as one local transaction and, if sync is enabled,
// enqueues it for delivery. Returns ErrEmptyTransaction for a nil/empty
// ops slice.
func (c *Client) Transact(ctx context.Context, ops []triplestore.Operation) (txn.Result, error) {
	if len(ops) == 0 {
		return txn.Result{}, ErrEmptyTransaction
	}
	result, err := c.txn.Transact(ctx, ops)
	if err != nil {
		return result, &TransactError{OperationCount: len(ops), Cause: err}
	}
	return result, nil
}

// Query registers (or reuses) a reactive subscription for desc. Callers
// read the current Result via Subscription.Read and observe further
// changes via Subscription.Watch.
func (c *Client) Query(ctx context.Context, desc query.Description) (*query.Subscription, error) {
	return c.query.Query(ctx, desc)
}

// DevtoolsRouter returns an http.Handler exposing inspection endpoints for
// entities, attributes, sync status and pending transactions, rooted at
// /devtools. staticDir, if non-empty, is served as a SPA fallback for
// everything else.
func (c *Client) DevtoolsRouter(staticDir string) http.Handler {
	return devtools.NewRouter(c.devtoolsHandler, staticDir)
}

// Store exposes the underlying durable store, for callers that need
// direct access (e.g. devtools wiring, tests).
func (c *Client) Store() triplestore.Store {
	return c.store
}

// Attrs exposes the Attribute Registry.
func (c *Client) Attrs() *attrregistry.Registry {
	return c.attrs
}

// SyncState returns the Sync Engine's current connection state, or
// "disabled" if Config.SyncEnabled is false.
func (c *Client) SyncState() string {
	if c.sync == nil {
		return "disabled"
	}
	return string(c.sync.State())
}

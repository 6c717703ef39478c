package sync

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relaydb/relaydb-go/attrregistry"
	"github.com/relaydb/relaydb-go/triplestore"
)

// bgCtx is used for the store calls this package makes off the request
// path (translation, cache invalidation) where no caller context exists.
var bgCtx = context.Background()

func newClientEventID() string {
	return uuid.NewString()
}

// Config bundles the Sync Engine's runtime parameters, taken from the
// root client's Config at construction.
type Config struct {
	AppID          string
	BaseURL        string // e.g. "wss://api.example.com" or "https://..."
	RefreshToken   string
	ReconnectDelay time.Duration
	ClientVersion  string
	Logger         zerolog.Logger

	// DisableCompletedHeuristic turns off the "unresolved boolean attr ->
	// completed" fallback in querydecode.go and inbound.go, for callers
	// that want strict decoding.
	DisableCompletedHeuristic bool
}

const (
	defaultReconnectDelay  = 2 * time.Second
	defaultPacingDelay     = 10 * time.Millisecond
	sentEventIDsCap        = 1000
	recentlyCreatedWindow  = 10 * time.Second
	recentlyCreatedMaxAge  = 30 * time.Second
	recentlyCreatedSweepEv = 50 // sweep recently-created after this many inserts
)

// Engine is the Sync Engine.
type Engine struct {
	cfg   Config
	store triplestore.Store
	attrs *attrregistry.Registry
	cache *resultCache
	state *stateHolder
	rooms *roomSet

	presence PresenceSink

	connMu    sync.Mutex
	conn      *websocket.Conn
	sessionID string

	outMu          sync.Mutex
	outQueue       []triplestore.Transaction
	outSignal      chan struct{}
	sentEventIDs   map[string]struct{}
	sentEventOrder []string

	recentMu        sync.Mutex
	recentlyCreated map[string]time.Time
	insertsSince    int

	pendMu         sync.Mutex
	pendingQueries []pendingQuery
	subscribed     map[string]struct{} // keyed by query cache key

	hashMu       sync.Mutex
	lastHash     map[string]string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type pendingQuery struct {
	key string
	q   any
}

// New creates a Sync Engine. store is the local Triple Store it reads
// and writes through; attrs is the Attribute Registry it grows.
func New(cfg Config, store triplestore.Store, attrs *attrregistry.Registry) *Engine {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Engine{
		cfg:             cfg,
		store:           store,
		attrs:           attrs,
		cache:           newResultCache(),
		state:           newStateHolder(),
		rooms:           newRoomSet(),
		presence:        noopPresenceSink{},
		outSignal:       make(chan struct{}, 1),
		sentEventIDs:    make(map[string]struct{}),
		recentlyCreated: make(map[string]time.Time),
		subscribed:      make(map[string]struct{}),
		lastHash:        make(map[string]string),
		stopCh:          make(chan struct{}),
	}
}

// SetPresenceSink wires a presence collaborator; until called, presence
// frames are forwarded to a no-op sink.
func (e *Engine) SetPresenceSink(sink PresenceSink) {
	e.presence = sink
}

// State returns the current connection state.
func (e *Engine) State() ConnectionState {
	return e.state.Get()
}

// WatchState returns a channel of successive ConnectionState values.
func (e *Engine) WatchState() <-chan ConnectionState {
	return e.state.Watch()
}

// Start opens the WebSocket connection and begins the session lifecycle.
// It returns immediately; the dial happens on a background goroutine, and
// connection success is observed via WatchState or State().
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.runLoop(ctx)
}

// Stop cancels the reconnect timer, closes the socket, and transitions to
// disconnected. In-flight applied transactions remain pending in the
// durable log for the next Start.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.connMu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
	}
	e.connMu.Unlock()
	e.wg.Wait()
	e.state.set(StateDisconnected)
}

// runLoop drives the connect -> await-init-ok -> connected -> disconnect
// -> reconnect cycle until Stop is called.
func (e *Engine) runLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		e.state.set(StateConnecting)
		conn, err := e.dial(ctx)
		if err != nil {
			e.cfg.Logger.Warn().Err(err).Msg("sync: dial failed")
			if !e.waitReconnect() {
				return
			}
			continue
		}

		e.connMu.Lock()
		e.conn = conn
		e.connMu.Unlock()

		e.state.set(StateAwaitingInitOK)
		if err := e.sendInit(); err != nil {
			e.cfg.Logger.Warn().Err(err).Msg("sync: send init failed")
			_ = conn.Close()
			if !e.waitReconnect() {
				return
			}
			continue
		}

		e.readLoop(conn) // blocks until the socket closes or errors

		e.rooms.onDisconnect()
		e.state.set(StateReconnecting)
		if !e.waitReconnect() {
			return
		}
	}
}

func (e *Engine) waitReconnect() bool {
	select {
	case <-e.stopCh:
		return false
	case <-time.After(e.cfg.ReconnectDelay):
		return true
	}
}

func (e *Engine) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(e.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("sync: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/runtime/session"
	q := u.Query()
	q.Set("app_id", e.cfg.AppID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("sync: dial: %w", err)
	}
	return conn, nil
}

func (e *Engine) sendInit() error {
	return e.sendRaw(initFrame(e.cfg.AppID, e.cfg.RefreshToken, uuid.NewString()))
}

// SendRaw implements WireSink, letting a presence collaborator share this
// engine's connection.
func (e *Engine) SendRaw(frame map[string]any) error {
	return e.sendRaw(frame)
}

func (e *Engine) sendRaw(frame any) error {
	e.connMu.Lock()
	conn := e.conn
	e.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("sync: not connected")
	}
	return conn.WriteJSON(frame)
}

// readLoop reads frames off conn until it closes or errors, dispatching
// each to handleFrame. It also starts the outbound drain goroutine for
// the duration of this connection.
func (e *Engine) readLoop(conn *websocket.Conn) {
	drainDone := make(chan struct{})
	drainStop := make(chan struct{})
	go func() {
		defer close(drainDone)
		e.drainOutbound(drainStop)
	}()
	defer func() {
		close(drainStop)
		<-drainDone
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			e.cfg.Logger.Info().Err(err).Msg("sync: read loop ended")
			return
		}
		frame, err := decodeFrame(raw)
		if err != nil {
			e.cfg.Logger.Warn().Err(err).Msg("sync: malformed frame")
			continue
		}
		e.handleFrame(frame)
	}
}

package sync

import "sync"

// ConnectionState is one state of the session lifecycle state machine.
type ConnectionState string

const (
	StateDisconnected   ConnectionState = "disconnected"
	StateConnecting     ConnectionState = "connecting"
	StateAwaitingInitOK ConnectionState = "awaiting-init-ok"
	StateConnected      ConnectionState = "connected"
	StateReconnecting   ConnectionState = "reconnecting"
)

// stateHolder is a small observable for ConnectionState, exposed through
// Engine.State and Engine.WatchState. Neither the root client nor the
// Query Engine watches it; a reconnect does not by itself resend query
// subscriptions.
type stateHolder struct {
	mu        sync.Mutex
	current   ConnectionState
	listeners []chan ConnectionState
}

func newStateHolder() *stateHolder {
	return &stateHolder{current: StateDisconnected}
}

func (h *stateHolder) Get() ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// set transitions to next and notifies listeners if it actually changed.
func (h *stateHolder) set(next ConnectionState) {
	h.mu.Lock()
	prev := h.current
	h.current = next
	listeners := append([]chan ConnectionState(nil), h.listeners...)
	h.mu.Unlock()

	if prev == next {
		return
	}
	for _, ch := range listeners {
		select {
		case ch <- next:
		default:
		}
	}
}

// Watch returns a channel of successive ConnectionState values.
func (h *stateHolder) Watch() <-chan ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan ConnectionState, 1)
	ch <- h.current
	h.listeners = append(h.listeners, ch)
	return ch
}

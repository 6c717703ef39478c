package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateHolderNotifiesOnChange(t *testing.T) {
	h := newStateHolder()
	watch := h.Watch()
	require.Equal(t, StateDisconnected, <-watch)

	h.set(StateConnecting)
	require.Equal(t, StateConnecting, <-watch)
	require.Equal(t, StateConnecting, h.Get())
}

func TestStateHolderSkipsNoOpTransition(t *testing.T) {
	h := newStateHolder()
	watch := h.Watch()
	<-watch // drain initial

	h.set(StateDisconnected) // no-op, same as current
	select {
	case v := <-watch:
		t.Fatalf("unexpected notification for no-op transition: %v", v)
	default:
	}
}

package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomSetTracksActiveAndJoinedIndependently(t *testing.T) {
	r := newRoomSet()
	r.markActive("chat", "room-1")
	r.markJoined("chat", "room-1")

	require.Len(t, r.activeRooms(), 1)

	r.onDisconnect()
	require.Len(t, r.activeRooms(), 1, "active set must survive disconnect so reconnect can rejoin")

	r.mu.Lock()
	_, stillJoined := r.joined[roomKey{"chat", "room-1"}]
	r.mu.Unlock()
	require.False(t, stillJoined)
}

func TestRoomSetMarkInactiveRemovesBoth(t *testing.T) {
	r := newRoomSet()
	r.markActive("chat", "room-1")
	r.markJoined("chat", "room-1")

	r.markInactive("chat", "room-1")
	require.Empty(t, r.activeRooms())
}

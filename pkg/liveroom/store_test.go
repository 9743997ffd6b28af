package liveroom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateRoom(t *testing.T) {
	store := NewMemoryStore()
	snap := store.CreateRoom("room-1", "standup", "alice")

	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, "alice", snap.HostID)
	assert.True(t, snap.IsSpeaker("alice"))
	assert.Equal(t, RoleHost, RoleOf(snap, "alice"))
}

func TestMemoryStoreSubscribeDeliversCurrentSnapshot(t *testing.T) {
	store := NewMemoryStore()
	store.CreateRoom("room-1", "standup", "alice")

	var got []*RoomSnapshot
	unsubscribe, err := store.Subscribe(context.Background(), "room-1", func(snap *RoomSnapshot) {
		got = append(got, snap)
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.Len(t, got, 1)
	require.NotNil(t, got[0])
	assert.Equal(t, "alice", got[0].HostID)
}

func TestMemoryStoreSubscribeUnknownRoom(t *testing.T) {
	store := NewMemoryStore()

	var got []*RoomSnapshot
	unsubscribe, err := store.Subscribe(context.Background(), "nope", func(snap *RoomSnapshot) {
		got = append(got, snap)
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestMemoryStoreModerationFlow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.CreateRoom("room-1", "standup", "alice")
	store.AddListener("room-1", "bob")

	var versions []int64
	unsubscribe, err := store.Subscribe(ctx, "room-1", func(snap *RoomSnapshot) {
		if snap != nil {
			versions = append(versions, snap.Version)
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, store.RaiseHand(ctx, "room-1", "bob"))
	require.NoError(t, store.InviteToSpeak(ctx, "room-1", "alice", "bob"))

	snap := store.Snapshot("room-1")
	require.NotNil(t, snap)
	assert.True(t, snap.IsSpeaker("bob"))
	assert.False(t, snap.HasRaisedHand("bob"))

	// Initial delivery plus one broadcast per applied command, versions
	// strictly increasing.
	assert.Equal(t, []int64{2, 3, 4}, versions)
}

func TestMemoryStoreUnauthorizedCommandBroadcastsNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.CreateRoom("room-1", "standup", "alice")
	store.AddListener("room-1", "bob")

	broadcasts := 0
	unsubscribe, err := store.Subscribe(ctx, "room-1", func(*RoomSnapshot) { broadcasts++ })
	require.NoError(t, err)
	defer unsubscribe()
	require.Equal(t, 1, broadcasts)

	// bob is a listener and may not kick the host or end the room.
	require.NoError(t, store.Kick(ctx, "room-1", "bob", "alice"))
	require.NoError(t, store.EndRoom(ctx, "room-1", "bob"))

	assert.Equal(t, 1, broadcasts)
	assert.NotNil(t, store.Snapshot("room-1"))
}

func TestMemoryStoreEndRoomBroadcastsNil(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.CreateRoom("room-1", "standup", "alice")

	var last *RoomSnapshot
	sawEnd := false
	unsubscribe, err := store.Subscribe(ctx, "room-1", func(snap *RoomSnapshot) {
		last = snap
		sawEnd = snap == nil
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, store.EndRoom(ctx, "room-1", "alice"))

	assert.True(t, sawEnd)
	assert.Nil(t, last)
	assert.Nil(t, store.Snapshot("room-1"))
}

func TestMemoryStoreCommandOnUnknownRoom(t *testing.T) {
	store := NewMemoryStore()
	err := store.RaiseHand(context.Background(), "nope", "bob")
	assert.ErrorIs(t, err, ErrRoomEnded)
}

func TestMemoryStoreRemoveParticipant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.CreateRoom("room-1", "standup", "alice")
	store.AddListener("room-1", "bob")
	require.NoError(t, store.RaiseHand(ctx, "room-1", "bob"))

	store.RemoveParticipant("room-1", "bob")

	snap := store.Snapshot("room-1")
	require.NotNil(t, snap)
	assert.Equal(t, RoleNone, RoleOf(snap, "bob"))
	assert.False(t, snap.HasRaisedHand("bob"))

	// The host cannot be removed this way.
	store.RemoveParticipant("room-1", "alice")
	assert.Equal(t, RoleHost, RoleOf(store.Snapshot("room-1"), "alice"))
}

func TestMemoryStoreAddListenerIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	store.CreateRoom("room-1", "standup", "alice")
	store.AddListener("room-1", "bob")
	store.AddListener("room-1", "bob")

	snap := store.Snapshot("room-1")
	assert.Equal(t, []string{"bob"}, snap.Listeners)
	assert.Equal(t, int64(2), snap.Version)
}

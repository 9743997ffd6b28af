package liveroom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCloneIsDeep(t *testing.T) {
	snap := testSnapshot()
	clone := snap.Clone()

	require.NotSame(t, snap, clone)
	assert.Equal(t, snap, clone)

	clone.Speakers[0] = "mallory"
	clone.RaisedHands = append(clone.RaisedHands, "erin")
	assert.Equal(t, "alice", snap.Speakers[0])
	assert.Len(t, snap.RaisedHands, 1)
}

func TestNormalizeAddsMissingHost(t *testing.T) {
	snap := &RoomSnapshot{
		HostID:   "alice",
		Speakers: []string{"bob"},
	}
	out := snap.Normalize()

	assert.Equal(t, []string{"alice", "bob"}, out.Speakers)
	// Input untouched.
	assert.Equal(t, []string{"bob"}, snap.Speakers)
}

func TestNormalizeResolvesDualMembership(t *testing.T) {
	snap := &RoomSnapshot{
		HostID:    "alice",
		Speakers:  []string{"alice", "bob"},
		Listeners: []string{"bob", "carol"},
	}
	out := snap.Normalize()

	assert.True(t, out.IsSpeaker("bob"))
	assert.False(t, out.IsListener("bob"))
	assert.True(t, out.IsListener("carol"))
}

func TestNormalizeDropsNonSpeakerCoHosts(t *testing.T) {
	snap := &RoomSnapshot{
		HostID:    "alice",
		Speakers:  []string{"alice", "bob"},
		Listeners: []string{"carol"},
		CoHosts:   []string{"bob", "carol"},
	}
	out := snap.Normalize()

	assert.True(t, out.IsCoHost("bob"))
	assert.False(t, out.IsCoHost("carol"))
}

func TestNormalizeDropsNonListenerRaisedHands(t *testing.T) {
	snap := &RoomSnapshot{
		HostID:      "alice",
		Speakers:    []string{"alice", "bob"},
		Listeners:   []string{"carol"},
		RaisedHands: []string{"bob", "carol", "ghost"},
	}
	out := snap.Normalize()

	assert.Equal(t, []string{"carol"}, out.RaisedHands)
}

func TestIdentityListHelpers(t *testing.T) {
	ids := []string{"a", "b"}

	assert.True(t, containsIdentity(ids, "a"))
	assert.False(t, containsIdentity(ids, "c"))

	appended := appendIdentity(ids, "c")
	assert.Equal(t, []string{"a", "b", "c"}, appended)
	assert.Equal(t, appended, appendIdentity(appended, "c"))

	assert.Equal(t, []string{"b"}, removeIdentity(ids, "a"))
	assert.Equal(t, []string{"a", "b"}, removeIdentity(ids, "z"))
}

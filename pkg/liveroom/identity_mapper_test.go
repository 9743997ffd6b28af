package liveroom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUidForIsDeterministic(t *testing.T) {
	a := UidFor("alice")
	b := UidFor("alice")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, UidFor("bob"))
}

func TestUidForStaysNonNegative(t *testing.T) {
	for _, identity := range []string{"", "alice", "用户-42", "a-very-long-identity-string-with-padding"} {
		assert.GreaterOrEqual(t, int32(UidFor(identity)), int32(0), "identity %q", identity)
	}
}

func TestIdentityMapperRebuild(t *testing.T) {
	m := NewIdentityMapper()
	m.Rebuild(testSnapshot())

	// Host, speakers, and listeners are all mapped.
	for _, identity := range []string{"alice", "bob", "carol", "dave", "erin"} {
		got, ok := m.IdentityFor(UidFor(identity))
		require.True(t, ok, "identity %q", identity)
		assert.Equal(t, identity, got)
	}
	assert.Equal(t, 5, m.Size())

	_, ok := m.IdentityFor(UidFor("mallory"))
	assert.False(t, ok)
}

func TestIdentityMapperRebuildReplacesTable(t *testing.T) {
	m := NewIdentityMapper()
	m.Rebuild(testSnapshot())

	m.Rebuild(&RoomSnapshot{HostID: "alice", Speakers: []string{"alice"}})
	assert.Equal(t, 1, m.Size())
	_, ok := m.IdentityFor(UidFor("bob"))
	assert.False(t, ok)
}

func TestIdentityMapperReset(t *testing.T) {
	m := NewIdentityMapper()
	m.Rebuild(testSnapshot())
	require.NotZero(t, m.Size())

	m.Reset()
	assert.Zero(t, m.Size())
}

func TestIdentityMapperNilSnapshot(t *testing.T) {
	m := NewIdentityMapper()
	m.Rebuild(testSnapshot())
	m.Rebuild(nil)
	assert.Zero(t, m.Size())
}

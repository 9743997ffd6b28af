package liveroom

import (
	"hash/fnv"
	"sync"
)

// UidFor derives the transport uid for a participant identity. The mapping
// is a pure function (FNV-1a reduced to the non-negative 31-bit range) with
// no ambient state, so the uid is re-derivable from any snapshot and stable
// for the lifetime of a room session.
//
// The hash is not collision-free. Room populations are tiny relative to the
// 2^31 space, so a collision is accepted as a known risk: the worst outcome
// is two participants transiently sharing an active-speaker highlight.
func UidFor(identity string) TransportUid {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return TransportUid(h.Sum32() & 0x7fffffff)
}

// IdentityMapper maintains the reverse lookup from transport uids back to
// participant identities. The forward direction is UidFor; the reverse table
// is recomputed from every snapshot because the participant set changes
// continuously, not just at join.
type IdentityMapper struct {
	mu    sync.RWMutex
	byUid map[TransportUid]string
}

// NewIdentityMapper creates an empty mapper.
func NewIdentityMapper() *IdentityMapper {
	return &IdentityMapper{
		byUid: make(map[TransportUid]string),
	}
}

// Rebuild recomputes the reverse table by applying UidFor to every identity
// the snapshot references: host, speakers, and listeners. Must be called on
// every snapshot update.
func (m *IdentityMapper) Rebuild(snap *RoomSnapshot) {
	table := make(map[TransportUid]string)
	if snap != nil {
		add := func(identity string) {
			if identity != "" {
				table[UidFor(identity)] = identity
			}
		}
		add(snap.HostID)
		for _, id := range snap.Speakers {
			add(id)
		}
		for _, id := range snap.Listeners {
			add(id)
		}
	}

	m.mu.Lock()
	m.byUid = table
	m.mu.Unlock()
}

// IdentityFor resolves a transport uid back to a participant identity. The
// second return is false when the uid is unknown, which happens routinely
// when a participant left the room since the last snapshot.
func (m *IdentityMapper) IdentityFor(uid TransportUid) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.byUid[uid]
	return identity, ok
}

// Size returns the number of mapped identities.
func (m *IdentityMapper) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUid)
}

// Reset clears the reverse table.
func (m *IdentityMapper) Reset() {
	m.mu.Lock()
	m.byUid = make(map[TransportUid]string)
	m.mu.Unlock()
}

package liveroom

import (
	"context"
	"sync"
)

// SnapshotHandler receives each room-state snapshot as the store delivers
// it. A nil snapshot means the room has ended or does not exist.
type SnapshotHandler func(snap *RoomSnapshot)

// RoomStateStore is the external source of truth for membership, roles, and
// moderation. Snapshots arrive at-least-once and not necessarily for every
// intermediate state. Moderation commands are fire-and-forget from the
// coordinator's perspective: the authoritative effect is the next snapshot
// that reflects them.
type RoomStateStore interface {
	// Subscribe registers a handler for snapshot updates of one room and
	// returns the function that cancels the subscription.
	Subscribe(ctx context.Context, roomID string, handler SnapshotHandler) (func(), error)

	RaiseHand(ctx context.Context, roomID, selfID string) error
	InviteToSpeak(ctx context.Context, roomID, actorID, targetID string) error
	MoveToListener(ctx context.Context, roomID, actorID, targetID string) error
	PromoteCoHost(ctx context.Context, roomID, actorID, targetID string) error
	DemoteCoHost(ctx context.Context, roomID, actorID, targetID string) error
	MuteSpeaker(ctx context.Context, roomID, actorID, targetID string) error
	UnmuteSpeaker(ctx context.Context, roomID, actorID, targetID string) error
	Kick(ctx context.Context, roomID, actorID, targetID string) error
	EndRoom(ctx context.Context, roomID, actorID string) error
}

// MemoryStore is an in-process RoomStateStore. Moderation commands go
// through the role state machine (Apply), and the resulting snapshots fan
// out to subscribers synchronously. It backs tests and single-process
// deployments where the room document does not need to leave the host.
type MemoryStore struct {
	mu      sync.Mutex
	rooms   map[string]*RoomSnapshot
	subs    map[string]map[int]SnapshotHandler
	nextSub int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*RoomSnapshot),
		subs:  make(map[string]map[int]SnapshotHandler),
	}
}

// CreateRoom creates a room document with the host as its first speaker and
// returns a copy of the initial snapshot.
func (s *MemoryStore) CreateRoom(roomID, topic, hostID string) *RoomSnapshot {
	snap := &RoomSnapshot{
		Version:  1,
		Topic:    topic,
		HostID:   hostID,
		Speakers: []string{hostID},
	}

	s.mu.Lock()
	s.rooms[roomID] = snap
	s.mu.Unlock()

	s.broadcast(roomID, snap)
	return snap.Clone()
}

// AddListener records a participant joining the audience. Presence is
// normally maintained by the hosting application, not by moderation.
func (s *MemoryStore) AddListener(roomID, identity string) {
	s.mu.Lock()
	snap := s.rooms[roomID]
	if snap == nil || snap.Ended || snap.IsSpeaker(identity) || snap.IsListener(identity) {
		s.mu.Unlock()
		return
	}
	next := snap.Clone()
	next.Version++
	next.Listeners = appendIdentity(next.Listeners, identity)
	next.Kicked = removeIdentity(next.Kicked, identity)
	s.rooms[roomID] = next
	s.mu.Unlock()

	s.broadcast(roomID, next)
}

// RemoveParticipant records a participant leaving voluntarily.
func (s *MemoryStore) RemoveParticipant(roomID, identity string) {
	s.mu.Lock()
	snap := s.rooms[roomID]
	if snap == nil || snap.Ended || identity == snap.HostID {
		s.mu.Unlock()
		return
	}
	next := snap.Clone()
	next.Version++
	next.Speakers = removeIdentity(next.Speakers, identity)
	next.Listeners = removeIdentity(next.Listeners, identity)
	next.CoHosts = removeIdentity(next.CoHosts, identity)
	next.RaisedHands = removeIdentity(next.RaisedHands, identity)
	next.MutedSpeakers = removeIdentity(next.MutedSpeakers, identity)
	s.rooms[roomID] = next
	s.mu.Unlock()

	s.broadcast(roomID, next)
}

// Snapshot returns a copy of the current room document, or nil if the room
// is unknown or ended.
func (s *MemoryStore) Snapshot(roomID string) *RoomSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.rooms[roomID]
	if snap == nil || snap.Ended {
		return nil
	}
	return snap.Clone()
}

// Subscribe implements RoomStateStore. The current snapshot (or nil for an
// unknown/ended room) is delivered immediately.
func (s *MemoryStore) Subscribe(ctx context.Context, roomID string, handler SnapshotHandler) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[int]SnapshotHandler)
	}
	s.subs[roomID][id] = handler
	current := s.rooms[roomID]
	s.mu.Unlock()

	if current == nil || current.Ended {
		handler(nil)
	} else {
		handler(current.Clone())
	}

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs[roomID], id)
		s.mu.Unlock()
	}
	return unsubscribe, nil
}

func (s *MemoryStore) RaiseHand(ctx context.Context, roomID, selfID string) error {
	return s.apply(roomID, ActionRaiseHand, selfID, selfID)
}

func (s *MemoryStore) InviteToSpeak(ctx context.Context, roomID, actorID, targetID string) error {
	return s.apply(roomID, ActionInviteToSpeak, actorID, targetID)
}

func (s *MemoryStore) MoveToListener(ctx context.Context, roomID, actorID, targetID string) error {
	return s.apply(roomID, ActionMoveToListener, actorID, targetID)
}

func (s *MemoryStore) PromoteCoHost(ctx context.Context, roomID, actorID, targetID string) error {
	return s.apply(roomID, ActionPromoteCoHost, actorID, targetID)
}

func (s *MemoryStore) DemoteCoHost(ctx context.Context, roomID, actorID, targetID string) error {
	return s.apply(roomID, ActionDemoteCoHost, actorID, targetID)
}

func (s *MemoryStore) MuteSpeaker(ctx context.Context, roomID, actorID, targetID string) error {
	return s.apply(roomID, ActionMuteSpeaker, actorID, targetID)
}

func (s *MemoryStore) UnmuteSpeaker(ctx context.Context, roomID, actorID, targetID string) error {
	return s.apply(roomID, ActionUnmuteSpeaker, actorID, targetID)
}

func (s *MemoryStore) Kick(ctx context.Context, roomID, actorID, targetID string) error {
	return s.apply(roomID, ActionKick, actorID, targetID)
}

func (s *MemoryStore) EndRoom(ctx context.Context, roomID, actorID string) error {
	return s.apply(roomID, ActionEndRoom, actorID, "")
}

// apply runs the action through the role state machine. Unauthorized
// commands leave the document untouched and broadcast nothing; the store is
// as silent about them as the coordinator is.
func (s *MemoryStore) apply(roomID string, action ModerationAction, actorID, targetID string) error {
	s.mu.Lock()
	snap := s.rooms[roomID]
	if snap == nil {
		s.mu.Unlock()
		return ErrRoomEnded
	}
	next := Apply(snap, action, actorID, targetID)
	if next == snap {
		s.mu.Unlock()
		return nil
	}
	s.rooms[roomID] = next
	s.mu.Unlock()

	if next.Ended {
		s.broadcast(roomID, nil)
	} else {
		s.broadcast(roomID, next)
	}
	return nil
}

func (s *MemoryStore) broadcast(roomID string, snap *RoomSnapshot) {
	s.mu.Lock()
	handlers := make([]SnapshotHandler, 0, len(s.subs[roomID]))
	for _, h := range s.subs[roomID] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		if snap == nil {
			h(nil)
		} else {
			h(snap.Clone())
		}
	}
}

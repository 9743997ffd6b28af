// Package liveroom implements the client-side coordination core for ephemeral
// live audio/video rooms: a session coordinator that reconciles the room-state
// snapshot stream pushed by an external store against the actual state of a
// real-time media transport session, a role state machine gating moderation,
// a deterministic identity-to-uid mapper, and an active-speaker detector.
package liveroom

// TransportUid is the transient numeric identifier the media transport
// requires for each participant. It is derived deterministically from a
// ParticipantIdentity (see UidFor) and stays in the non-negative signed
// 32-bit range.
type TransportUid int32

// TrackKind identifies the media type of a published track.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// VolumeSample is one volume reading for one transport uid. Levels are
// nominally 0-100 but can exceed 100 on hot inputs.
type VolumeSample struct {
	Uid   TransportUid `json:"uid"`
	Level int          `json:"level"`
}

// RoomCapabilities parameterizes a coordinator for a room variant: video
// rooms versus audio-only, and moderating surfaces versus read-only ones.
type RoomCapabilities struct {
	Video      bool
	Moderation bool
}

// MediaPublishState is the local session's publish state. It is owned
// exclusively by the SessionCoordinator and mutated only on local user
// actions or role changes observed in a snapshot.
type MediaPublishState struct {
	AudioPublished bool
	VideoPublished bool
	Muted          bool
	CameraOff      bool

	// AudioUnavailable/VideoUnavailable latch after a device failure so the
	// reconcile loop does not retry the same failing publish on every
	// snapshot tick.
	AudioUnavailable bool
	VideoUnavailable bool
}

// RoomView is the derived read model pushed to the presentation layer on
// every recomputation.
type RoomView struct {
	Role            Role
	Topic           string
	ActiveSpeakerID string
	RaisedHandIDs   []string
	MutedSpeakerIDs []string
	Publish         MediaPublishState
	Ended           bool
}

// RoomSnapshot is the authoritative room-state document delivered by the
// store. The coordinator never mutates a snapshot in place; each update
// supersedes the previous one. All collections default to empty, so
// consumers never branch on field presence.
//
// Invariants the store is assumed to aim for (and the coordinator clips to
// via Normalize rather than treating violations as fatal):
//   - every identity appears in at most one of speakers/listeners
//   - the host is a speaker
//   - co-hosts are speakers
//   - raised hands are listeners
type RoomSnapshot struct {
	Version       int64    `json:"version"`
	Topic         string   `json:"topic"`
	HostID        string   `json:"hostId"`
	Speakers      []string `json:"speakers"`
	Listeners     []string `json:"listeners"`
	CoHosts       []string `json:"coHosts,omitempty"`
	RaisedHands   []string `json:"raisedHands,omitempty"`
	MutedSpeakers []string `json:"mutedSpeakers,omitempty"`
	Kicked        []string `json:"kicked,omitempty"`
	Ended         bool     `json:"ended,omitempty"`
}

// IsSpeaker reports whether the identity is in the speaker list (host
// included).
func (s *RoomSnapshot) IsSpeaker(identity string) bool {
	return identity != "" && (identity == s.HostID || containsIdentity(s.Speakers, identity))
}

// IsListener reports whether the identity is in the listener list.
func (s *RoomSnapshot) IsListener(identity string) bool {
	return containsIdentity(s.Listeners, identity)
}

// IsCoHost reports whether the identity is in the co-host set.
func (s *RoomSnapshot) IsCoHost(identity string) bool {
	return containsIdentity(s.CoHosts, identity)
}

// HasRaisedHand reports whether the identity has a pending raised hand.
func (s *RoomSnapshot) HasRaisedHand(identity string) bool {
	return containsIdentity(s.RaisedHands, identity)
}

// IsMuted reports whether a moderator has muted the identity.
func (s *RoomSnapshot) IsMuted(identity string) bool {
	return containsIdentity(s.MutedSpeakers, identity)
}

// IsKicked reports whether the identity has been removed from the room.
func (s *RoomSnapshot) IsKicked(identity string) bool {
	return containsIdentity(s.Kicked, identity)
}

// Clone returns a deep copy of the snapshot.
func (s *RoomSnapshot) Clone() *RoomSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Speakers = append([]string(nil), s.Speakers...)
	out.Listeners = append([]string(nil), s.Listeners...)
	out.CoHosts = append([]string(nil), s.CoHosts...)
	out.RaisedHands = append([]string(nil), s.RaisedHands...)
	out.MutedSpeakers = append([]string(nil), s.MutedSpeakers...)
	out.Kicked = append([]string(nil), s.Kicked...)
	return &out
}

// Normalize returns a copy of the snapshot clipped to its invariants. The
// store is externally owned and not guaranteed consistent at every instant,
// so drift is tolerated here instead of rejected:
//   - the host is added to the speaker list if missing
//   - identities listed as both speaker and listener stay speakers
//   - co-hosts who are not speakers are dropped
//   - raised hands from non-listeners are dropped
func (s *RoomSnapshot) Normalize() *RoomSnapshot {
	out := s.Clone()

	if out.HostID != "" && !containsIdentity(out.Speakers, out.HostID) {
		out.Speakers = append([]string{out.HostID}, out.Speakers...)
	}

	listeners := out.Listeners[:0:0]
	for _, id := range out.Listeners {
		if !containsIdentity(out.Speakers, id) {
			listeners = append(listeners, id)
		}
	}
	out.Listeners = listeners

	coHosts := out.CoHosts[:0:0]
	for _, id := range out.CoHosts {
		if containsIdentity(out.Speakers, id) {
			coHosts = append(coHosts, id)
		}
	}
	out.CoHosts = coHosts

	raised := out.RaisedHands[:0:0]
	for _, id := range out.RaisedHands {
		if containsIdentity(out.Listeners, id) {
			raised = append(raised, id)
		}
	}
	out.RaisedHands = raised

	return out
}

func containsIdentity(ids []string, identity string) bool {
	for _, id := range ids {
		if id == identity {
			return true
		}
	}
	return false
}

func appendIdentity(ids []string, identity string) []string {
	if containsIdentity(ids, identity) {
		return ids
	}
	return append(ids, identity)
}

func removeIdentity(ids []string, identity string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != identity {
			out = append(out, id)
		}
	}
	return out
}

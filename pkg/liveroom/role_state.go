package liveroom

// Role is a participant's position in the room. Ordering matters: higher
// roles include the media and moderation rights of the lower ones, with Host
// a permanent super-state of CoHost.
type Role int

const (
	// RoleNone means the identity is not present in the room.
	RoleNone Role = iota
	RoleListener
	RoleRaisedHand
	RoleSpeaker
	RoleCoHost
	RoleHost
)

func (r Role) String() string {
	switch r {
	case RoleListener:
		return "listener"
	case RoleRaisedHand:
		return "raised_hand"
	case RoleSpeaker:
		return "speaker"
	case RoleCoHost:
		return "co_host"
	case RoleHost:
		return "host"
	default:
		return "none"
	}
}

// CanPublish reports whether the role is allowed to transmit media.
func (r Role) CanPublish() bool {
	return r >= RoleSpeaker
}

// CanModerate reports whether the role may act on other participants.
func (r Role) CanModerate() bool {
	return r >= RoleCoHost
}

// ModerationAction is a requested role transition or moderation command.
type ModerationAction int

const (
	ActionRaiseHand ModerationAction = iota
	ActionInviteToSpeak
	ActionMoveToListener
	ActionPromoteCoHost
	ActionDemoteCoHost
	ActionMuteSpeaker
	ActionUnmuteSpeaker
	ActionKick
	ActionEndRoom
)

func (a ModerationAction) String() string {
	switch a {
	case ActionRaiseHand:
		return "raise_hand"
	case ActionInviteToSpeak:
		return "invite_to_speak"
	case ActionMoveToListener:
		return "move_to_listener"
	case ActionPromoteCoHost:
		return "promote_co_host"
	case ActionDemoteCoHost:
		return "demote_co_host"
	case ActionMuteSpeaker:
		return "mute_speaker"
	case ActionUnmuteSpeaker:
		return "unmute_speaker"
	case ActionKick:
		return "kick"
	case ActionEndRoom:
		return "end_room"
	default:
		return "unknown"
	}
}

// RoleOf resolves the authoritative role of an identity from a snapshot.
// Callers must pass the freshest snapshot they hold; roles are never cached.
func RoleOf(snap *RoomSnapshot, identity string) Role {
	if snap == nil || identity == "" {
		return RoleNone
	}
	switch {
	case identity == snap.HostID:
		return RoleHost
	case snap.IsCoHost(identity):
		return RoleCoHost
	case snap.IsSpeaker(identity):
		return RoleSpeaker
	case snap.HasRaisedHand(identity):
		return RoleRaisedHand
	case snap.IsListener(identity):
		return RoleListener
	default:
		return RoleNone
	}
}

// Allows reports whether an actor with the given role may perform action on
// a target with the given role. Pure decision logic; the coordinator is
// responsible for resolving both roles from the latest snapshot immediately
// before asking.
//
// The permission table:
//   - raise hand: self-only, from Listener
//   - invite to speak: Host or CoHost, target must have a raised hand
//   - promote/demote co-host: Host only
//   - move to listener: Host on any Speaker/CoHost, CoHost on plain Speakers
//   - mute/unmute: Host on Speakers and CoHosts, CoHost on plain Speakers
//   - kick: Host on anyone but themselves, CoHost on non-Host non-CoHost
//   - end room: Host only
func Allows(actor, target Role, action ModerationAction) bool {
	switch action {
	case ActionRaiseHand:
		return actor == RoleListener && target == RoleListener
	case ActionInviteToSpeak:
		return actor.CanModerate() && target == RoleRaisedHand
	case ActionMoveToListener:
		if target == RoleSpeaker {
			return actor.CanModerate()
		}
		return target == RoleCoHost && actor == RoleHost
	case ActionPromoteCoHost:
		return actor == RoleHost && target == RoleSpeaker
	case ActionDemoteCoHost:
		return actor == RoleHost && target == RoleCoHost
	case ActionMuteSpeaker, ActionUnmuteSpeaker:
		if target == RoleSpeaker {
			return actor.CanModerate()
		}
		return target == RoleCoHost && actor == RoleHost
	case ActionKick:
		if target == RoleNone || target == RoleHost {
			return false
		}
		if actor == RoleHost {
			return true
		}
		return actor == RoleCoHost && target != RoleCoHost
	case ActionEndRoom:
		return actor == RoleHost
	default:
		return false
	}
}

// Apply returns the successor snapshot after an authorized action, with the
// version advanced by one. The input snapshot is not modified. If the action
// is not permitted for the given actor and target, the original snapshot is
// returned unchanged; unauthorized transitions are no-ops, not errors.
//
// Apply is the role set transition function; stores that own the room-state
// document (see MemoryStore) use it to compute each update.
func Apply(snap *RoomSnapshot, action ModerationAction, actorID, targetID string) *RoomSnapshot {
	if snap == nil || snap.Ended {
		return snap
	}
	if action == ActionRaiseHand && actorID != targetID {
		return snap
	}
	if !Allows(RoleOf(snap, actorID), RoleOf(snap, targetID), action) {
		return snap
	}

	next := snap.Clone()
	next.Version = snap.Version + 1

	switch action {
	case ActionRaiseHand:
		next.RaisedHands = appendIdentity(next.RaisedHands, targetID)
	case ActionInviteToSpeak:
		next.RaisedHands = removeIdentity(next.RaisedHands, targetID)
		next.Listeners = removeIdentity(next.Listeners, targetID)
		next.Speakers = appendIdentity(next.Speakers, targetID)
	case ActionMoveToListener:
		next.Speakers = removeIdentity(next.Speakers, targetID)
		next.CoHosts = removeIdentity(next.CoHosts, targetID)
		// Returning to the audience clears any moderation mute.
		next.MutedSpeakers = removeIdentity(next.MutedSpeakers, targetID)
		next.Listeners = appendIdentity(next.Listeners, targetID)
	case ActionPromoteCoHost:
		next.CoHosts = appendIdentity(next.CoHosts, targetID)
	case ActionDemoteCoHost:
		next.CoHosts = removeIdentity(next.CoHosts, targetID)
	case ActionMuteSpeaker:
		next.MutedSpeakers = appendIdentity(next.MutedSpeakers, targetID)
	case ActionUnmuteSpeaker:
		next.MutedSpeakers = removeIdentity(next.MutedSpeakers, targetID)
	case ActionKick:
		next.Speakers = removeIdentity(next.Speakers, targetID)
		next.Listeners = removeIdentity(next.Listeners, targetID)
		next.CoHosts = removeIdentity(next.CoHosts, targetID)
		next.RaisedHands = removeIdentity(next.RaisedHands, targetID)
		next.MutedSpeakers = removeIdentity(next.MutedSpeakers, targetID)
		next.Kicked = appendIdentity(next.Kicked, targetID)
	case ActionEndRoom:
		next.Ended = true
	}

	return next
}
